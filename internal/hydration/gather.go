package hydration

import (
	"fmt"

	"rowgraph/internal/metadata"
)

type columnKind int

const (
	columnIgnored columnKind = iota
	columnField
	columnMeta
	columnDiscriminator
	columnScalar
)

// columnInfo is the cached interpretation of one result column.
type columnInfo struct {
	kind         columnKind
	alias        string
	name         string
	fieldType    string
	isIdentifier bool
}

// bucket holds the values of one alias for one row.
type bucket struct {
	fields map[string]any
	meta   map[string]any
}

type scalarValue struct {
	name  string
	value any
}

// rowData is one row split by alias.
type rowData struct {
	buckets        map[string]*bucket
	ids            identityKeys
	nonEmpty       map[string]bool
	discriminators map[string]any
	scalars        []scalarValue
}

func (d *rowData) bucket(alias string) *bucket {
	b, ok := d.buckets[alias]
	if !ok {
		b = &bucket{fields: make(map[string]any), meta: make(map[string]any)}
		d.buckets[alias] = b
	}
	return b
}

// gather splits row into per-alias buckets, identity tokens and scalars.
// An alias whose field columns are all null stays empty; meta columns alone
// never make an alias non-empty.
func (r *Run) gather(row Row) (*rowData, error) {
	data := &rowData{
		buckets:        make(map[string]*bucket),
		ids:            identityKeys{},
		nonEmpty:       make(map[string]bool),
		discriminators: make(map[string]any),
	}

	for i, column := range row.Columns {
		if i >= len(row.Values) {
			break
		}
		info := r.column(column)
		value := row.Values[i]
		if b, ok := value.([]byte); ok {
			value = string(b)
		}

		switch info.kind {
		case columnScalar:
			data.scalars = append(data.scalars, scalarValue{name: info.name, value: value})
		case columnDiscriminator:
			data.discriminators[info.alias] = value
		case columnMeta:
			b := data.bucket(info.alias)
			if _, seen := b.meta[info.name]; !seen || value != nil {
				b.meta[info.name] = value
			}
		case columnField:
			if info.isIdentifier {
				data.ids.add(info.alias, value)
			}
			converted, err := metadata.ConvertValue(info.fieldType, value)
			if err != nil {
				return nil, fmt.Errorf("hydration: row %d: column %q: %w", r.rowNum, column, err)
			}
			data.bucket(info.alias).fields[info.name] = converted
			if value != nil {
				data.nonEmpty[info.alias] = true
			}
		}
	}
	return data, nil
}

// column interprets a result column once per run.
func (r *Run) column(column string) columnInfo {
	if info, ok := r.columns[column]; ok {
		return info
	}

	info := columnInfo{}
	if name, ok := r.rsm.Scalar(column); ok {
		info = columnInfo{kind: columnScalar, name: name}
	} else if alias, ok := r.rsm.ColumnOwner(column); ok {
		info.alias = alias
		if discriminator, ok := r.rsm.DiscriminatorColumn(alias); ok && discriminator == column {
			info.kind = columnDiscriminator
		} else if field, ok := r.rsm.Field(column); ok {
			info.kind = columnField
			info.name = field
			class := r.aliasClasses[alias]
			info.isIdentifier = class.IsIdentifier(field)
			info.fieldType = r.fieldType(class, field)
		} else if meta, ok := r.rsm.Meta(column); ok {
			info.kind = columnMeta
			info.name = meta
		}
	}
	r.columns[column] = info
	return info
}

// fieldType finds the declared type of field on class or, for inheritance
// hierarchies, on any mapped subclass.
func (r *Run) fieldType(class *metadata.ClassMetadata, field string) string {
	if fm, ok := class.Fields[field]; ok {
		return fm.Type
	}
	root := class
	if class.RootEntityName != class.Name {
		if c, err := r.h.classMetadata(class.RootEntityName); err == nil {
			root = c
		}
	}
	for _, name := range root.DiscriminatorMap {
		sub, err := r.h.classMetadata(name)
		if err != nil {
			continue
		}
		if fm, ok := sub.Fields[field]; ok {
			return fm.Type
		}
	}
	return ""
}
