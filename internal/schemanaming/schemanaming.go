// Package schemanaming applies naming rules to snapshot tables.
package schemanaming

import (
	"rowgraph/internal/naming"
	"rowgraph/internal/schemadiff"
)

// Apply assigns class names to the tables of the snapshot that have none,
// so live snapshots match class-keyed documents by logical name.
// Collision suffixes restart for every snapshot.
func Apply(snapshot *schemadiff.Snapshot, namer *naming.Namer) {
	if snapshot == nil {
		return
	}
	if namer == nil {
		namer = naming.Default()
	}
	namer.Reset()

	for ti := range snapshot.Tables {
		table := &snapshot.Tables[ti]
		if table.Class != "" {
			continue
		}
		table.Class = namer.RegisterClass(table.Name)
	}
}
