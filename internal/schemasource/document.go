package schemasource

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"rowgraph/internal/naming"
	"rowgraph/internal/schemadiff"
)

// Document is the file form of a snapshot. JSON documents use the same keys.
// Tables may be listed physically or keyed by class; a class without a table
// name gets the pluralized snake_case of the class.
//
//	name: shop
//	classes:
//	  Customer:
//	    columns:
//	      - {name: id, type: integer, notnull: true}
//	    primary_key: [id]
//	tables:
//	  - name: migration_version
//	    columns: [{name: version, type: string, length: 191}]
type Document struct {
	Name    string                      `yaml:"name"`
	Tables  []schemadiff.Table          `yaml:"tables"`
	Classes map[string]schemadiff.Table `yaml:"classes"`
}

var documentExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// isDocument reports whether name has a schema document extension.
func isDocument(name string) bool {
	return documentExtensions[strings.ToLower(path.Ext(name))]
}

// decodeDocument reads one document. An empty document yields no tables.
func decodeDocument(r io.Reader, namer *naming.Namer) (schemadiff.Snapshot, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return schemadiff.Snapshot{}, nil
		}
		return schemadiff.Snapshot{}, fmt.Errorf("failed to parse schema document: %w", err)
	}
	return doc.Snapshot(namer), nil
}

// Snapshot flattens the document, listed tables first and class-keyed tables
// in class order.
func (d Document) Snapshot(namer *naming.Namer) schemadiff.Snapshot {
	if namer == nil {
		namer = naming.Default()
	}
	s := schemadiff.Snapshot{Name: d.Name}
	s.Tables = append(s.Tables, d.Tables...)

	classes := make([]string, 0, len(d.Classes))
	for class := range d.Classes {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		t := d.Classes[class]
		t.Class = class
		if t.Name == "" {
			t.Name = namer.TableName(class)
		}
		s.Tables = append(s.Tables, t)
	}
	return s
}

// merge appends the tables of next to s, keeping the first non-empty name.
func merge(s, next schemadiff.Snapshot) schemadiff.Snapshot {
	if s.Name == "" {
		s.Name = next.Name
	}
	s.Tables = append(s.Tables, next.Tables...)
	return s
}
