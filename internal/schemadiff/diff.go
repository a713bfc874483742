package schemadiff

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultFromPrefix marks class names generated for the "from" side.
	DefaultFromPrefix = "FromPrfx"
	// DefaultToPrefix marks class names generated for the "to" side.
	DefaultToPrefix = "ToPrfx"
	// DefaultMigrationTable is the migration bookkeeping table left out of diffs.
	DefaultMigrationTable = "migration_version"
)

// Options configure a Differ.
type Options struct {
	// FromPrefix and ToPrefix are stripped from logical names before matching.
	FromPrefix string
	ToPrefix   string
	// IgnoreTables are physical table names excluded from both snapshots.
	IgnoreTables []string
}

// DefaultOptions returns the standard prefixes and ignores the migration table.
func DefaultOptions() Options {
	return Options{
		FromPrefix:   DefaultFromPrefix,
		ToPrefix:     DefaultToPrefix,
		IgnoreTables: []string{DefaultMigrationTable},
	}
}

// Differ computes change sets between snapshots. It holds no state between
// calls and is safe for concurrent use.
type Differ struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Differ.
func New(opts Options, logger *slog.Logger) *Differ {
	if logger == nil {
		logger = slog.Default()
	}
	return &Differ{opts: opts, logger: logger}
}

// tableSet is one side of a diff indexed by logical name.
type tableSet struct {
	byClass map[string]*Table
	classes []string
}

func (s tableSet) get(class string) (*Table, bool) {
	t, ok := s.byClass[class]
	return t, ok
}

// counterpart returns the table of s with the logical name class, provided it
// also has the physical name of t. Change sets are keyed by physical name, so
// a class whose table was renamed shows up as a dropped and a created table.
func (s tableSet) counterpart(class string, t *Table) (*Table, bool) {
	other, ok := s.get(class)
	if !ok || !strings.EqualFold(other.Name, t.Name) {
		return nil, false
	}
	return other, true
}

// Diff returns the changes that turn from into to. Both snapshots are
// normalized so every foreign key has a covering index before comparing.
// Neither argument is modified.
func (d *Differ) Diff(ctx context.Context, from, to Snapshot) (*ChangeSet, error) {
	_, span := otel.Tracer("rowgraph/schemadiff").Start(ctx, "schemadiff.diff")
	defer span.End()
	span.SetAttributes(
		attribute.String("schemadiff.from", from.Name),
		attribute.String("schemadiff.to", to.Name),
	)

	fromSet, err := d.index(NormalizeForeignKeyIndexes(from))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	toSet, err := d.index(NormalizeForeignKeyIndexes(to))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	changes := NewChangeSet()
	d.forward(changes, fromSet, toSet)
	d.backward(changes, fromSet, toSet)

	span.SetAttributes(attribute.Int("schemadiff.changes", changes.Count()))
	d.logger.Debug("schema diff computed",
		slog.String("from", from.Name),
		slog.String("to", to.Name),
		slog.Int("changes", changes.Count()),
	)
	return changes, nil
}

// forward walks "to": new tables, added and changed columns, new and
// redefined foreign keys with their covering indexes, and new indexes.
func (d *Differ) forward(changes *ChangeSet, from, to tableSet) {
	for _, class := range to.classes {
		t, _ := to.get(class)
		old, existed := from.counterpart(class, t)
		if !existed {
			changes.CreatedTables[t.Name] = t.Clone()
		} else {
			for _, col := range t.Columns {
				prev, ok := old.Column(col.Name)
				switch {
				case !ok:
					put(changes.AddedColumns, t.Name, col.Name, col)
				case !prev.Equal(col):
					put(changes.ChangedColumns, t.Name, col.Name, col)
				}
			}
		}

		for _, fk := range t.ForeignKeys {
			var prev ForeignKey
			ok := false
			if existed {
				prev, ok = old.ForeignKey(fk.Name)
			}
			switch {
			case !ok:
				put(changes.CreatedFKs, t.Name, fk.Name, fk)
				idx, _ := CoveringIndex(t, fk, nil)
				if idx.Name == "" {
					continue
				}
				if existed {
					if _, present := old.Index(idx.Name); present {
						continue
					}
				}
				put(changes.AddedIndexes, t.Name, idx.Name, idx)
			case !prev.Equal(fk):
				put(changes.DroppedFKs, t.Name, fk.Name, prev)
				put(changes.CreatedFKs, t.Name, fk.Name, fk)
			}
		}

		for _, idx := range t.Indexes {
			var prev Index
			ok := false
			if existed {
				prev, ok = old.Index(idx.Name)
			}
			switch {
			case !ok:
				put(changes.AddedIndexes, t.Name, idx.Name, idx)
			case !prev.Equal(idx):
				put(changes.RemovedIndexes, old.Name, prev.Name, prev)
				put(changes.AddedIndexes, t.Name, idx.Name, idx)
			}
		}
	}
}

// backward walks "from": dropped tables, removed columns, dropped foreign
// keys and removed indexes.
func (d *Differ) backward(changes *ChangeSet, from, to tableSet) {
	for _, class := range from.classes {
		t, _ := from.get(class)
		next, exists := to.counterpart(class, t)
		if !exists {
			changes.DroppedTables[t.Name] = t.Clone()
		} else {
			for _, col := range t.Columns {
				if _, ok := next.Column(col.Name); !ok {
					put(changes.RemovedColumns, t.Name, col.Name, col)
				}
			}
		}

		for _, fk := range t.ForeignKeys {
			if exists {
				if _, ok := next.ForeignKey(fk.Name); ok {
					continue
				}
			}
			put(changes.DroppedFKs, t.Name, fk.Name, fk)
		}

		for _, idx := range t.Indexes {
			if exists {
				if _, ok := next.Index(idx.Name); ok {
					continue
				}
			}
			put(changes.RemovedIndexes, t.Name, idx.Name, idx)
		}
	}
}

// index keys the tables of s by logical name, leaving out ignored tables.
func (d *Differ) index(s Snapshot) (tableSet, error) {
	set := tableSet{byClass: make(map[string]*Table, len(s.Tables))}
	for i := range s.Tables {
		t := &s.Tables[i]
		if d.ignored(t.Name) {
			continue
		}
		class := d.logicalName(t)
		if prev, ok := set.byClass[class]; ok {
			return tableSet{}, &DuplicateTableError{Snapshot: s.Name, Class: class, Tables: [2]string{prev.Name, t.Name}}
		}
		set.byClass[class] = t
		set.classes = append(set.classes, class)
	}
	sort.Strings(set.classes)
	return set, nil
}

func (d *Differ) logicalName(t *Table) string {
	name := t.LogicalName()
	for _, prefix := range []string{d.opts.ToPrefix, d.opts.FromPrefix} {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

func (d *Differ) ignored(table string) bool {
	for _, name := range d.opts.IgnoreTables {
		if strings.EqualFold(name, table) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
