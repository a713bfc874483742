package schemadiff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Change categories, in the order they are reported.
const (
	CategoryCreatedTables  = "created_tables"
	CategoryDroppedTables  = "dropped_tables"
	CategoryCreatedFKs     = "created_fks"
	CategoryDroppedFKs     = "dropped_fks"
	CategoryAddedColumns   = "added_columns"
	CategoryRemovedColumns = "removed_columns"
	CategoryChangedColumns = "changed_columns"
	CategoryAddedIndexes   = "added_indexes"
	CategoryRemovedIndexes = "removed_indexes"
)

// Categories lists every change category.
var Categories = []string{
	CategoryCreatedTables,
	CategoryDroppedTables,
	CategoryCreatedFKs,
	CategoryDroppedFKs,
	CategoryAddedColumns,
	CategoryRemovedColumns,
	CategoryChangedColumns,
	CategoryAddedIndexes,
	CategoryRemovedIndexes,
}

// ChangeSet holds the differences between two snapshots, keyed by physical
// table name and then by column, index or foreign key name. It is plain data
// meant for migration generators.
type ChangeSet struct {
	CreatedTables  map[string]Table                 `json:"created_tables" yaml:"created_tables" msgpack:"created_tables"`
	DroppedTables  map[string]Table                 `json:"dropped_tables" yaml:"dropped_tables" msgpack:"dropped_tables"`
	CreatedFKs     map[string]map[string]ForeignKey `json:"created_fks" yaml:"created_fks" msgpack:"created_fks"`
	DroppedFKs     map[string]map[string]ForeignKey `json:"dropped_fks" yaml:"dropped_fks" msgpack:"dropped_fks"`
	AddedColumns   map[string]map[string]Column     `json:"added_columns" yaml:"added_columns" msgpack:"added_columns"`
	RemovedColumns map[string]map[string]Column     `json:"removed_columns" yaml:"removed_columns" msgpack:"removed_columns"`
	ChangedColumns map[string]map[string]Column     `json:"changed_columns" yaml:"changed_columns" msgpack:"changed_columns"`
	AddedIndexes   map[string]map[string]Index      `json:"added_indexes" yaml:"added_indexes" msgpack:"added_indexes"`
	RemovedIndexes map[string]map[string]Index      `json:"removed_indexes" yaml:"removed_indexes" msgpack:"removed_indexes"`
}

// NewChangeSet returns an empty change set with every category allocated.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		CreatedTables:  make(map[string]Table),
		DroppedTables:  make(map[string]Table),
		CreatedFKs:     make(map[string]map[string]ForeignKey),
		DroppedFKs:     make(map[string]map[string]ForeignKey),
		AddedColumns:   make(map[string]map[string]Column),
		RemovedColumns: make(map[string]map[string]Column),
		ChangedColumns: make(map[string]map[string]Column),
		AddedIndexes:   make(map[string]map[string]Index),
		RemovedIndexes: make(map[string]map[string]Index),
	}
}

// IsEmpty reports whether no category holds a change.
func (c *ChangeSet) IsEmpty() bool {
	for _, n := range c.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of changes.
func (c *ChangeSet) Count() int {
	total := 0
	for _, n := range c.Counts() {
		total += n
	}
	return total
}

// Counts returns the number of changes per category.
func (c *ChangeSet) Counts() map[string]int {
	return map[string]int{
		CategoryCreatedTables:  len(c.CreatedTables),
		CategoryDroppedTables:  len(c.DroppedTables),
		CategoryCreatedFKs:     nested(c.CreatedFKs),
		CategoryDroppedFKs:     nested(c.DroppedFKs),
		CategoryAddedColumns:   nested(c.AddedColumns),
		CategoryRemovedColumns: nested(c.RemovedColumns),
		CategoryChangedColumns: nested(c.ChangedColumns),
		CategoryAddedIndexes:   nested(c.AddedIndexes),
		CategoryRemovedIndexes: nested(c.RemovedIndexes),
	}
}

func nested[V any](m map[string]map[string]V) int {
	n := 0
	for _, inner := range m {
		n += len(inner)
	}
	return n
}

func put[V any](m map[string]map[string]V, table, name string, v V) {
	inner, ok := m[table]
	if !ok {
		inner = make(map[string]V)
		m[table] = inner
	}
	inner[name] = v
}

// Apply returns a copy of from with every change applied. Dropped elements
// are removed before created ones are added, so a foreign key reported as
// dropped and created is replaced.
func (c *ChangeSet) Apply(from Snapshot) (Snapshot, error) {
	out := from.Clone()

	// Dropped tables also report their foreign keys and indexes as removed.
	dropped := func(name string) bool {
		_, ok := lookup(c.DroppedTables, name)
		return ok
	}
	out.Tables = removeNamed(out.Tables, c.DroppedTables, func(t Table) string { return t.Name })

	table := func(name string) (*Table, error) {
		t, ok := out.Table(name)
		if !ok {
			return nil, &ApplyError{Table: name, Reason: "table does not exist"}
		}
		return t, nil
	}

	for name, cols := range c.RemovedColumns {
		if dropped(name) {
			continue
		}
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		t.Columns = removeNamed(t.Columns, cols, func(col Column) string { return col.Name })
	}
	for name, fks := range c.DroppedFKs {
		if dropped(name) {
			continue
		}
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		t.ForeignKeys = removeNamed(t.ForeignKeys, fks, func(fk ForeignKey) string { return fk.Name })
	}
	for name, idxs := range c.RemovedIndexes {
		if dropped(name) {
			continue
		}
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		t.Indexes = removeNamed(t.Indexes, idxs, func(idx Index) string { return idx.Name })
	}

	for _, name := range sortedKeys(c.CreatedTables) {
		if _, exists := out.Table(name); exists {
			return Snapshot{}, &ApplyError{Table: name, Reason: "table already exists"}
		}
		out.Tables = append(out.Tables, c.CreatedTables[name].Clone())
	}

	for name, cols := range c.ChangedColumns {
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		for i, col := range t.Columns {
			if changed, ok := lookup(cols, col.Name); ok {
				t.Columns[i] = changed
			}
		}
	}
	for _, name := range sortedKeys(c.AddedColumns) {
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		for _, colName := range sortedKeys(c.AddedColumns[name]) {
			t.Columns = append(t.Columns, c.AddedColumns[name][colName])
		}
	}
	for _, name := range sortedKeys(c.CreatedFKs) {
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		for _, fkName := range sortedKeys(c.CreatedFKs[name]) {
			if _, exists := t.ForeignKey(fkName); !exists {
				t.ForeignKeys = append(t.ForeignKeys, c.CreatedFKs[name][fkName])
			}
		}
	}
	for _, name := range sortedKeys(c.AddedIndexes) {
		t, err := table(name)
		if err != nil {
			return Snapshot{}, err
		}
		for _, idxName := range sortedKeys(c.AddedIndexes[name]) {
			if _, exists := t.Index(idxName); !exists {
				t.Indexes = append(t.Indexes, c.AddedIndexes[name][idxName])
			}
		}
	}
	return out, nil
}

// removeNamed drops the items whose name is a key of names.
func removeNamed[T, V any](items []T, names map[string]V, name func(T) string) []T {
	out := items[:0]
	for _, item := range items {
		if _, ok := lookup(names, name(item)); !ok {
			out = append(out, item)
		}
	}
	return out
}

func lookup[V any](m map[string]V, name string) (V, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Format is a change set serialization format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatYAML, FormatMsgpack:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported change set format %q", name)
	}
}

// Encode writes the change set to w.
func (c *ChangeSet) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc.Encode(c)
	default:
		return fmt.Errorf("unsupported change set format %q", format)
	}
}

// Decode reads a change set written by Encode.
func Decode(r io.Reader, format Format) (*ChangeSet, error) {
	c := NewChangeSet()
	var err error
	switch format {
	case FormatJSON, "":
		err = json.NewDecoder(r).Decode(c)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(c)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(c)
	default:
		return nil, fmt.Errorf("unsupported change set format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode change set: %w", err)
	}
	return c, nil
}
