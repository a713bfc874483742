// Package loader loads eager associations that a query did not fetch-join by
// issuing one SELECT per association and hydrating its rows in a nested run.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"rowgraph/internal/collection"
	"rowgraph/internal/dbexec"
	"rowgraph/internal/hydration"
	"rowgraph/internal/mapping"
	"rowgraph/internal/metadata"
	"rowgraph/internal/sqlutil"
)

const targetAlias = "t"

// SQLLoader implements hydration.EagerLoader against a database.
type SQLLoader struct {
	executor dbexec.QueryExecutor
	registry metadata.Registry
	dialect  sqlutil.Dialect
	hydrator *hydration.Hydrator
	logger   *slog.Logger
}

// New creates a loader. Attach must be called before the first load.
func New(executor dbexec.QueryExecutor, registry metadata.Registry, dialect sqlutil.Dialect, logger *slog.Logger) *SQLLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLLoader{executor: executor, registry: registry, dialect: dialect, logger: logger}
}

// Attach sets the hydrator used to hydrate loaded rows. It is normally the
// hydrator the loader is installed on, so loaded entities share its unit of work.
func (l *SQLLoader) Attach(h *hydration.Hydrator) {
	l.hydrator = h
}

// LoadOne implements hydration.EagerLoader.
func (l *SQLLoader) LoadOne(ctx context.Context, owner any, assoc *metadata.Association, joinValues map[string]any) (any, error) {
	target, err := l.registry.ClassMetadata(assoc.TargetEntity)
	if err != nil {
		return nil, err
	}

	where := sq.Eq{}
	if assoc.IsOwningSide {
		for _, jc := range assoc.JoinColumns {
			where[l.column(jc.ReferencedColumnName)] = joinValues[jc.Name]
		}
	} else {
		inverse, ok := target.Association(assoc.MappedBy)
		if !ok {
			return nil, fmt.Errorf("class %q has no association %q", target.Name, assoc.MappedBy)
		}
		for _, jc := range inverse.JoinColumns {
			value, err := l.ownerValue(owner, assoc.SourceEntity, jc.ReferencedColumnName)
			if err != nil {
				return nil, err
			}
			where[l.column(jc.Name)] = value
		}
	}

	result, err := l.load(ctx, target, l.selectFrom(target).Where(where).Limit(1))
	if err != nil {
		return nil, err
	}
	if result.Len() == 0 {
		return nil, nil
	}
	return result.Entities()[0], nil
}

// LoadCollection implements hydration.EagerLoader.
func (l *SQLLoader) LoadCollection(ctx context.Context, owner any, assoc *metadata.Association, coll *collection.Collection) error {
	target, err := l.registry.ClassMetadata(assoc.TargetEntity)
	if err != nil {
		return err
	}

	query := l.selectFrom(target)
	switch assoc.Kind {
	case metadata.OneToMany:
		inverse, ok := target.Association(assoc.MappedBy)
		if !ok {
			return fmt.Errorf("class %q has no association %q", target.Name, assoc.MappedBy)
		}
		where := sq.Eq{}
		for _, jc := range inverse.JoinColumns {
			value, err := l.ownerValue(owner, assoc.SourceEntity, jc.ReferencedColumnName)
			if err != nil {
				return err
			}
			where[l.column(jc.Name)] = value
		}
		query = query.Where(where)

	case metadata.ManyToMany:
		joinTable, ownerColumns, targetColumns, err := l.linkTable(target, assoc)
		if err != nil {
			return err
		}
		link := l.dialect.QuoteIdentifier(joinTable.Name)
		on := ""
		for i, jc := range targetColumns {
			if i > 0 {
				on += " AND "
			}
			on += fmt.Sprintf("%s.%s = %s", link, l.dialect.QuoteIdentifier(jc.Name), l.column(jc.ReferencedColumnName))
		}
		where := sq.Eq{}
		for _, jc := range ownerColumns {
			value, err := l.ownerValue(owner, assoc.SourceEntity, jc.ReferencedColumnName)
			if err != nil {
				return err
			}
			where[link+"."+l.dialect.QuoteIdentifier(jc.Name)] = value
		}
		query = query.Join(link + " ON " + on).Where(where)

	default:
		return fmt.Errorf("association %s.%s is not a collection", assoc.SourceEntity, assoc.FieldName)
	}

	result, err := l.load(ctx, target, query)
	if err != nil {
		return err
	}

	coll.Clear()
	for _, entity := range result.Entities() {
		if assoc.IndexBy != "" {
			coll.HydrateSet(l.fieldValue(entity, target, assoc.IndexBy), entity)
			continue
		}
		coll.HydrateAdd(entity)
	}
	coll.SetInitialized(true)
	coll.TakeSnapshot()
	return nil
}

// linkTable returns the join table of a many-to-many association together
// with the link columns pointing at the owner and at the target.
func (l *SQLLoader) linkTable(target *metadata.ClassMetadata, assoc *metadata.Association) (*metadata.JoinTable, []metadata.JoinColumn, []metadata.JoinColumn, error) {
	if assoc.IsOwningSide {
		if assoc.JoinTable == nil {
			return nil, nil, nil, fmt.Errorf("association %s.%s has no join table", assoc.SourceEntity, assoc.FieldName)
		}
		return assoc.JoinTable, assoc.JoinTable.JoinColumns, assoc.JoinTable.InverseJoinColumns, nil
	}
	owning, ok := target.Association(assoc.MappedBy)
	if !ok || owning.JoinTable == nil {
		return nil, nil, nil, fmt.Errorf("association %s.%s has no owning join table", assoc.SourceEntity, assoc.FieldName)
	}
	return owning.JoinTable, owning.JoinTable.InverseJoinColumns, owning.JoinTable.JoinColumns, nil
}

func (l *SQLLoader) load(ctx context.Context, target *metadata.ClassMetadata, query sq.SelectBuilder) (*hydration.Result, error) {
	if l.hydrator == nil {
		return nil, fmt.Errorf("loader is not attached to a hydrator")
	}
	rsm, err := l.mapping(target)
	if err != nil {
		return nil, err
	}

	sqlText, args, err := query.PlaceholderFormat(l.dialect.Placeholder()).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", target.Name, err)
	}
	l.logger.Debug("eager load query", slog.String("class", target.Name), slog.String("sql", sqlText))

	rows, err := l.executor.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", target.Name, err)
	}
	cursor, err := hydration.NewSQLCursor(rows)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	return l.hydrator.HydrateAll(ctx, cursor, rsm, hydration.Hints{})
}

// selectFrom selects every column the hydration mapping of target needs.
func (l *SQLLoader) selectFrom(target *metadata.ClassMetadata) sq.SelectBuilder {
	columns := make([]string, 0)
	for _, column := range l.columns(target) {
		columns = append(columns, fmt.Sprintf("%s AS %s", l.column(column), l.dialect.QuoteIdentifier(resultColumn(column))))
	}
	return sq.Select(columns...).
		From(l.dialect.QuoteIdentifier(target.Table) + " " + targetAlias)
}

// mapping returns the result set mapping of the columns chosen by selectFrom.
func (l *SQLLoader) mapping(target *metadata.ClassMetadata) (*mapping.ResultSetMapping, error) {
	root, classes, err := l.hierarchy(target)
	if err != nil {
		return nil, err
	}
	rsm := mapping.New().AddEntityResult(target.Name, targetAlias)
	seen := make(map[string]bool)
	for _, class := range classes {
		for _, field := range class.FieldNames() {
			column := class.Fields[field].ColumnName
			if seen[column] {
				continue
			}
			seen[column] = true
			rsm.AddFieldResult(targetAlias, resultColumn(column), field)
		}
		for _, name := range class.AssociationNames() {
			assoc := class.Associations[name]
			if !assoc.Kind.IsToOne() || !assoc.IsOwningSide {
				continue
			}
			for _, jc := range assoc.JoinColumns {
				if seen[jc.Name] {
					continue
				}
				seen[jc.Name] = true
				rsm.AddMetaResult(targetAlias, resultColumn(jc.Name), jc.Name)
			}
		}
	}
	if root.DiscriminatorColumn != "" {
		rsm.SetDiscriminatorColumn(targetAlias, resultColumn(root.DiscriminatorColumn))
	}
	return rsm, nil
}

// columns lists the table columns of target and of its mapped subclasses.
func (l *SQLLoader) columns(target *metadata.ClassMetadata) []string {
	root, classes, err := l.hierarchy(target)
	if err != nil {
		classes = []*metadata.ClassMetadata{target}
		root = target
	}
	seen := make(map[string]bool)
	var out []string
	add := func(column string) {
		if !seen[column] {
			seen[column] = true
			out = append(out, column)
		}
	}
	for _, class := range classes {
		for _, field := range class.FieldNames() {
			add(class.Fields[field].ColumnName)
		}
		for _, name := range class.AssociationNames() {
			assoc := class.Associations[name]
			if assoc.Kind.IsToOne() && assoc.IsOwningSide {
				for _, jc := range assoc.JoinColumns {
					add(jc.Name)
				}
			}
		}
	}
	if root.DiscriminatorColumn != "" {
		add(root.DiscriminatorColumn)
	}
	return out
}

// hierarchy returns the inheritance root of target and every class whose
// columns may appear in its table, target first.
func (l *SQLLoader) hierarchy(target *metadata.ClassMetadata) (*metadata.ClassMetadata, []*metadata.ClassMetadata, error) {
	root := target
	if target.RootEntityName != target.Name {
		c, err := l.registry.ClassMetadata(target.RootEntityName)
		if err != nil {
			return nil, nil, err
		}
		root = c
	}
	classes := []*metadata.ClassMetadata{target}
	names := make([]string, 0, len(root.DiscriminatorMap))
	for _, name := range root.DiscriminatorMap {
		if name != target.Name {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		c, err := l.registry.ClassMetadata(name)
		if err != nil {
			return nil, nil, err
		}
		classes = append(classes, c)
	}
	return root, classes, nil
}

// ownerValue reads the owner's value of the column a join column references.
func (l *SQLLoader) ownerValue(owner any, className, column string) (any, error) {
	if named, ok := owner.(metadata.Named); ok {
		className = named.ClassName()
	}
	class, err := l.registry.ClassMetadata(className)
	if err != nil {
		return nil, err
	}
	field, ok := class.FieldForColumn(column)
	if !ok {
		return nil, fmt.Errorf("class %q maps no field to column %q", class.Name, column)
	}
	return class.Accessor(field).Get(owner), nil
}

func (l *SQLLoader) fieldValue(entity any, fallback *metadata.ClassMetadata, field string) any {
	class := fallback
	if named, ok := entity.(metadata.Named); ok {
		if c, err := l.registry.ClassMetadata(named.ClassName()); err == nil {
			class = c
		}
	}
	return class.Accessor(field).Get(entity)
}

func (l *SQLLoader) column(name string) string {
	return targetAlias + "." + l.dialect.QuoteIdentifier(name)
}

func resultColumn(column string) string {
	return targetAlias + "_" + column
}
