package mapping

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Query is a SQL statement paired with the mapping of its result columns.
//
//	sql: SELECT c.id AS c_id, ca.id AS ca_id FROM customers c LEFT JOIN carts ca ON ca.customer_id = c.id
//	entities:
//	  - {alias: c, class: Customer, fields: {c_id: id}}
//	  - {alias: ca, class: Cart, parent: c, relation: carts, fields: {ca_id: id}}
type Query struct {
	SQL      string           `yaml:"sql"`
	Args     []any            `yaml:"args"`
	Entities []EntityDocument `yaml:"entities"`
	Scalars  []ScalarDocument `yaml:"scalars"`
	Mixed    *bool            `yaml:"mixed"`
}

// EntityDocument declares one alias.
type EntityDocument struct {
	Alias         string            `yaml:"alias"`
	Class         string            `yaml:"class"`
	Parent        string            `yaml:"parent"`
	Relation      string            `yaml:"relation"`
	IndexBy       string            `yaml:"indexBy"`
	Discriminator string            `yaml:"discriminator"`
	Fields        map[string]string `yaml:"fields"`
	Meta          map[string]string `yaml:"meta"`
}

// ScalarDocument declares one scalar column.
type ScalarDocument struct {
	Column string `yaml:"column"`
	Name   string `yaml:"name"`
}

// LoadQueryFile reads a query document from path.
func LoadQueryFile(path string) (*Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer f.Close()
	q, err := DecodeQuery(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// DecodeQuery decodes a YAML query document.
func DecodeQuery(r io.Reader) (*Query, error) {
	var q Query
	if err := yaml.NewDecoder(r).Decode(&q); err != nil {
		return nil, fmt.Errorf("failed to decode query document: %w", err)
	}
	if q.SQL == "" {
		return nil, fmt.Errorf("query document has no sql")
	}
	return &q, nil
}

// Mapping builds the result set mapping declared by the document.
func (q *Query) Mapping() (*ResultSetMapping, error) {
	m := New()
	for _, e := range q.Entities {
		if e.Alias == "" || e.Class == "" {
			return nil, fmt.Errorf("entity mapping requires alias and class")
		}
		if e.Parent != "" {
			m.AddJoinedEntityResult(e.Class, e.Alias, e.Parent, e.Relation)
		} else {
			m.AddEntityResult(e.Class, e.Alias)
		}
		for _, column := range sortedKeys(e.Fields) {
			m.AddFieldResult(e.Alias, column, e.Fields[column])
		}
		for _, column := range sortedKeys(e.Meta) {
			m.AddMetaResult(e.Alias, column, e.Meta[column])
		}
		if e.Discriminator != "" {
			m.SetDiscriminatorColumn(e.Alias, e.Discriminator)
		}
		if e.IndexBy != "" {
			m.AddIndexBy(e.Alias, e.IndexBy)
		}
	}
	for _, s := range q.Scalars {
		name := s.Name
		if name == "" {
			name = s.Column
		}
		m.AddScalarResult(s.Column, name)
	}
	if q.Mixed != nil {
		m.SetMixed(*q.Mixed)
	}
	if err := m.Validate(nil); err != nil {
		return nil, err
	}
	return m, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
