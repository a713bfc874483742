// Package schemadiff compares two schema snapshots and reports the changes
// that turn the first into the second.
package schemadiff

import (
	"strings"

	"rowgraph/internal/sqltype"
)

// Column describes a table column.
type Column struct {
	Name          string  `json:"name" yaml:"name" msgpack:"name"`
	Type          string  `json:"type" yaml:"type" msgpack:"type"`
	Length        int     `json:"length,omitempty" yaml:"length,omitempty" msgpack:"length,omitempty"`
	Precision     int     `json:"precision,omitempty" yaml:"precision,omitempty" msgpack:"precision,omitempty"`
	Scale         int     `json:"scale,omitempty" yaml:"scale,omitempty" msgpack:"scale,omitempty"`
	NotNull       bool    `json:"notnull,omitempty" yaml:"notnull,omitempty" msgpack:"notnull,omitempty"`
	Default       *string `json:"default,omitempty" yaml:"default,omitempty" msgpack:"default,omitempty"`
	AutoIncrement bool    `json:"autoincrement,omitempty" yaml:"autoincrement,omitempty" msgpack:"autoincrement,omitempty"`
	Unsigned      bool    `json:"unsigned,omitempty" yaml:"unsigned,omitempty" msgpack:"unsigned,omitempty"`
	Comment       string  `json:"comment,omitempty" yaml:"comment,omitempty" msgpack:"comment,omitempty"`
}

// Index describes a secondary index. Type "" means btree.
type Index struct {
	Name    string   `json:"name" yaml:"name" msgpack:"name"`
	Columns []string `json:"columns" yaml:"columns" msgpack:"columns"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique,omitempty" msgpack:"unique,omitempty"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty" msgpack:"type,omitempty"`
}

// ForeignKey describes a foreign key constraint. Empty actions mean NO ACTION.
type ForeignKey struct {
	Name              string   `json:"name" yaml:"name" msgpack:"name"`
	Columns           []string `json:"columns" yaml:"columns" msgpack:"columns"`
	ReferencedTable   string   `json:"referenced_table" yaml:"referenced_table" msgpack:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns" yaml:"referenced_columns" msgpack:"referenced_columns"`
	OnUpdate          string   `json:"on_update,omitempty" yaml:"on_update,omitempty" msgpack:"on_update,omitempty"`
	OnDelete          string   `json:"on_delete,omitempty" yaml:"on_delete,omitempty" msgpack:"on_delete,omitempty"`
}

// TableOptions holds table storage options.
type TableOptions struct {
	Engine    string `json:"engine,omitempty" yaml:"engine,omitempty" msgpack:"engine,omitempty"`
	Charset   string `json:"charset,omitempty" yaml:"charset,omitempty" msgpack:"charset,omitempty"`
	Collation string `json:"collation,omitempty" yaml:"collation,omitempty" msgpack:"collation,omitempty"`
}

// Table describes one table. Class is the logical name tables are matched
// by across snapshots; it defaults to the table name.
type Table struct {
	Name        string       `json:"name" yaml:"name" msgpack:"name"`
	Class       string       `json:"class,omitempty" yaml:"class,omitempty" msgpack:"class,omitempty"`
	Columns     []Column     `json:"columns" yaml:"columns" msgpack:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty" yaml:"primary_key,omitempty" msgpack:"primary_key,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty" yaml:"indexes,omitempty" msgpack:"indexes,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty" msgpack:"foreign_keys,omitempty"`
	Options     TableOptions `json:"options" yaml:"options" msgpack:"options"`
}

// Snapshot is a named set of tables, such as one side of a diff.
type Snapshot struct {
	Name   string  `json:"name" yaml:"name" msgpack:"name"`
	Tables []Table `json:"tables" yaml:"tables" msgpack:"tables"`
}

// Table returns the table with the given physical name.
func (s *Snapshot) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// LogicalName returns the name the table is matched by.
func (t *Table) LogicalName() string {
	if t.Class != "" {
		return t.Class
	}
	return t.Name
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Index returns the named index.
func (t *Table) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if strings.EqualFold(idx.Name, name) {
			return idx, true
		}
	}
	return Index{}, false
}

// ForeignKey returns the named foreign key.
func (t *Table) ForeignKey(name string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if strings.EqualFold(fk.Name, name) {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := t
	out.Columns = make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		if c.Default != nil {
			d := *c.Default
			c.Default = &d
		}
		out.Columns[i] = c
	}
	out.PrimaryKey = append([]string(nil), t.PrimaryKey...)
	out.Indexes = make([]Index, len(t.Indexes))
	for i, idx := range t.Indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		out.Indexes[i] = idx
	}
	out.ForeignKeys = make([]ForeignKey, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		fk.Columns = append([]string(nil), fk.Columns...)
		fk.ReferencedColumns = append([]string(nil), fk.ReferencedColumns...)
		out.ForeignKeys[i] = fk
	}
	return out
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Name: s.Name, Tables: make([]Table, len(s.Tables))}
	for i, t := range s.Tables {
		out.Tables[i] = t.Clone()
	}
	return out
}

// Equal reports whether two columns describe the same definition. Types are
// compared after alias normalization; a zero length, precision or scale on
// either side means unspecified; a NULL default equals no default.
func (c Column) Equal(o Column) bool {
	if !strings.EqualFold(c.Name, o.Name) {
		return false
	}
	a, b := c.Normalize(), o.Normalize()
	if a.Type != b.Type {
		return false
	}
	if !sizeEqual(a.Length, b.Length) || !sizeEqual(a.Precision, b.Precision) || !sizeEqual(a.Scale, b.Scale) {
		return false
	}
	if a.NotNull != b.NotNull || a.AutoIncrement != b.AutoIncrement || a.Unsigned != b.Unsigned {
		return false
	}
	if !defaultEqual(a.Default, b.Default) {
		return false
	}
	return a.Comment == b.Comment
}

// Normalize returns c with its type reduced to a canonical base name and any
// size suffix such as "(255)" or "(10,2)" moved into Length, Precision and Scale.
func (c Column) Normalize() Column {
	decl := sqltype.Parse(c.Type)
	if decl.Unsigned {
		c.Unsigned = true
	}
	base, args := decl.Base, decl.Args
	switch len(args) {
	case 1:
		if isDecimal(base) {
			if c.Precision == 0 {
				c.Precision = args[0]
			}
		} else if c.Length == 0 {
			c.Length = args[0]
		}
	case 2:
		if c.Precision == 0 {
			c.Precision = args[0]
		}
		if c.Scale == 0 {
			c.Scale = args[1]
		}
	}
	if base == "boolean" {
		c.Length = 0
	}
	c.Type = base
	return c
}

// Equal reports whether two indexes cover the same columns in the same way.
func (i Index) Equal(o Index) bool {
	return strings.EqualFold(i.Name, o.Name) &&
		i.Unique == o.Unique &&
		indexType(i.Type) == indexType(o.Type) &&
		namesEqual(i.Columns, o.Columns)
}

// Covers reports whether the index can serve lookups on columns.
func (i Index) Covers(columns []string) bool {
	if len(columns) == 0 || len(i.Columns) < len(columns) {
		return false
	}
	return namesEqual(i.Columns[:len(columns)], columns)
}

// Equal reports whether two foreign keys have the same definition.
func (f ForeignKey) Equal(o ForeignKey) bool {
	return strings.EqualFold(f.Name, o.Name) &&
		strings.EqualFold(f.ReferencedTable, o.ReferencedTable) &&
		namesEqual(f.Columns, o.Columns) &&
		namesEqual(f.ReferencedColumns, o.ReferencedColumns) &&
		referentialAction(f.OnUpdate) == referentialAction(o.OnUpdate) &&
		referentialAction(f.OnDelete) == referentialAction(o.OnDelete)
}

func isDecimal(base string) bool {
	return base == "decimal"
}

func sizeEqual(a, b int) bool {
	return a == 0 || b == 0 || a == b
}

func defaultEqual(a, b *string) bool {
	x, xok := normalizeDefault(a)
	y, yok := normalizeDefault(b)
	return xok == yok && x == y
}

// normalizeDefault strips quoting from a default expression. A NULL default
// reports false like a missing one.
func normalizeDefault(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	s := strings.TrimSpace(*v)
	if strings.EqualFold(s, "null") {
		return "", false
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s, true
}

func indexType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "btree"
	}
	return t
}

func referentialAction(a string) string {
	a = strings.ToUpper(strings.Join(strings.Fields(a), " "))
	if a == "" {
		return "NO ACTION"
	}
	return a
}

func namesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
