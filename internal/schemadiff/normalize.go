package schemadiff

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// MaxIdentifierLength bounds generated index names. It is the MySQL limit and
// below the PostgreSQL one.
const MaxIdentifierLength = 63

// IndexNamer generates index names that are unique within one table.
type IndexNamer struct {
	taken map[string]bool
}

// NewIndexNamer returns a namer that avoids the index names t already uses.
func NewIndexNamer(t *Table) *IndexNamer {
	n := &IndexNamer{taken: make(map[string]bool)}
	for _, idx := range t.Indexes {
		n.taken[strings.ToLower(idx.Name)] = true
	}
	return n
}

// Name returns "<table>_<columns>_idx", shortened with a hash when it exceeds
// MaxIdentifierLength and suffixed with a counter when already taken.
func (n *IndexNamer) Name(table string, columns []string) string {
	base := fmt.Sprintf("%s_%s_idx", table, strings.Join(columns, "_"))
	if len(base) > MaxIdentifierLength {
		h := fnv.New32a()
		_, _ = h.Write([]byte(base))
		suffix := fmt.Sprintf("_%08x_idx", h.Sum32())
		base = base[:MaxIdentifierLength-len(suffix)] + suffix
	}

	name := base
	for i := 2; n.taken[strings.ToLower(name)]; i++ {
		counter := fmt.Sprintf("_%d", i)
		if len(base)+len(counter) > MaxIdentifierLength {
			name = base[:MaxIdentifierLength-len(counter)] + counter
		} else {
			name = base + counter
		}
	}
	n.taken[strings.ToLower(name)] = true
	return name
}

// CoveringIndex returns the index of t serving fk's local columns, creating
// a generator-named one when none exists. created reports whether the index
// was synthesized. t is not modified.
func CoveringIndex(t *Table, fk ForeignKey, namer *IndexNamer) (idx Index, created bool) {
	for _, existing := range t.Indexes {
		if existing.Covers(fk.Columns) {
			return existing, false
		}
	}
	if len(t.PrimaryKey) > 0 {
		pk := Index{Columns: t.PrimaryKey}
		if pk.Covers(fk.Columns) {
			return Index{}, false
		}
	}
	if namer == nil {
		namer = NewIndexNamer(t)
	}
	return Index{
		Name:    namer.Name(t.Name, fk.Columns),
		Columns: append([]string(nil), fk.Columns...),
	}, true
}

// NormalizeForeignKeyIndexes returns a copy of s in which every foreign key
// has a covering index. Databases such as MySQL create that index implicitly,
// so snapshots read from files and from live databases compare equal.
func NormalizeForeignKeyIndexes(s Snapshot) Snapshot {
	out := s.Clone()
	for i := range out.Tables {
		t := &out.Tables[i]
		if len(t.ForeignKeys) == 0 {
			continue
		}
		namer := NewIndexNamer(t)
		for _, fk := range t.ForeignKeys {
			idx, created := CoveringIndex(t, fk, namer)
			if created {
				t.Indexes = append(t.Indexes, idx)
			}
		}
	}
	return out
}
