// Package mapping describes how the columns of a flat SQL result map onto
// entity aliases, their fields, and scalar results.
package mapping

import (
	"fmt"
	"sort"

	"rowgraph/internal/metadata"
)

// ResultSetMapping is the column to entity mapping of one query. It is built
// once and must not be modified while a hydration run reads it.
type ResultSetMapping struct {
	aliasMap             map[string]string
	parentAliasMap       map[string]string
	relationMap          map[string]string
	discriminatorColumns map[string]string
	indexByMap           map[string]string
	fieldMappings        map[string]string
	metaMappings         map[string]string
	scalarMappings       map[string]string
	columnOwnerMap       map[string]string
	aliasOrder           []string
	scalarOrder          []string
	mixed                *bool
}

// New returns an empty mapping.
func New() *ResultSetMapping {
	return &ResultSetMapping{
		aliasMap:             make(map[string]string),
		parentAliasMap:       make(map[string]string),
		relationMap:          make(map[string]string),
		discriminatorColumns: make(map[string]string),
		indexByMap:           make(map[string]string),
		fieldMappings:        make(map[string]string),
		metaMappings:         make(map[string]string),
		scalarMappings:       make(map[string]string),
		columnOwnerMap:       make(map[string]string),
	}
}

// AddEntityResult declares a root alias of class.
func (m *ResultSetMapping) AddEntityResult(class, alias string) *ResultSetMapping {
	m.addAlias(alias, class)
	return m
}

// AddJoinedEntityResult declares alias as a fetch join populating relation on
// the entity of parentAlias.
func (m *ResultSetMapping) AddJoinedEntityResult(class, alias, parentAlias, relation string) *ResultSetMapping {
	m.addAlias(alias, class)
	m.parentAliasMap[alias] = parentAlias
	m.relationMap[alias] = relation
	return m
}

func (m *ResultSetMapping) addAlias(alias, class string) {
	if _, ok := m.aliasMap[alias]; !ok {
		m.aliasOrder = append(m.aliasOrder, alias)
	}
	m.aliasMap[alias] = class
}

// AddFieldResult maps column to field of the entity of alias.
func (m *ResultSetMapping) AddFieldResult(alias, column, field string) *ResultSetMapping {
	m.fieldMappings[column] = field
	m.columnOwnerMap[column] = alias
	return m
}

// AddMetaResult maps column to a non-field value of alias, such as a join
// column or discriminator.
func (m *ResultSetMapping) AddMetaResult(alias, column, name string) *ResultSetMapping {
	m.metaMappings[column] = name
	m.columnOwnerMap[column] = alias
	return m
}

// AddScalarResult maps column to a scalar result named name.
func (m *ResultSetMapping) AddScalarResult(column, name string) *ResultSetMapping {
	if _, ok := m.scalarMappings[column]; !ok {
		m.scalarOrder = append(m.scalarOrder, column)
	}
	m.scalarMappings[column] = name
	return m
}

// SetDiscriminatorColumn marks column as the subtype tag of alias. The column
// is registered as a meta result if it is not mapped yet.
func (m *ResultSetMapping) SetDiscriminatorColumn(alias, column string) *ResultSetMapping {
	m.discriminatorColumns[alias] = column
	if _, ok := m.columnOwnerMap[column]; !ok {
		m.AddMetaResult(alias, column, column)
	}
	return m
}

// AddIndexBy keys the results of alias by field instead of appending.
func (m *ResultSetMapping) AddIndexBy(alias, field string) *ResultSetMapping {
	m.indexByMap[alias] = field
	return m
}

// SetMixed forces or disables mixed results. Without it a mapping is mixed
// when it has both entity fields and scalar columns.
func (m *ResultSetMapping) SetMixed(mixed bool) *ResultSetMapping {
	m.mixed = &mixed
	return m
}

// IsMixed reports whether root results are entity plus scalar tuples.
func (m *ResultSetMapping) IsMixed() bool {
	if m.mixed != nil {
		return *m.mixed
	}
	return len(m.scalarMappings) > 0 && len(m.fieldMappings) > 0
}

// Aliases returns all aliases in declaration order.
func (m *ResultSetMapping) Aliases() []string {
	return append([]string(nil), m.aliasOrder...)
}

// RootAliases returns aliases without a parent, in declaration order.
func (m *ResultSetMapping) RootAliases() []string {
	var roots []string
	for _, alias := range m.aliasOrder {
		if _, ok := m.parentAliasMap[alias]; !ok {
			roots = append(roots, alias)
		}
	}
	return roots
}

// EntityName returns the class declared for alias.
func (m *ResultSetMapping) EntityName(alias string) (string, bool) {
	class, ok := m.aliasMap[alias]
	return class, ok
}

// ParentAlias returns the parent of a joined alias.
func (m *ResultSetMapping) ParentAlias(alias string) (string, bool) {
	parent, ok := m.parentAliasMap[alias]
	return parent, ok
}

// IsRootAlias reports whether alias has no parent.
func (m *ResultSetMapping) IsRootAlias(alias string) bool {
	_, joined := m.parentAliasMap[alias]
	_, known := m.aliasMap[alias]
	return known && !joined
}

// Relation returns the parent field populated by a joined alias.
func (m *ResultSetMapping) Relation(alias string) string {
	return m.relationMap[alias]
}

// DiscriminatorColumn returns the subtype tag column of alias.
func (m *ResultSetMapping) DiscriminatorColumn(alias string) (string, bool) {
	column, ok := m.discriminatorColumns[alias]
	return column, ok
}

// IndexBy returns the key field of alias, or "".
func (m *ResultSetMapping) IndexBy(alias string) string {
	return m.indexByMap[alias]
}

// ColumnOwner returns the alias owning an entity or meta column.
func (m *ResultSetMapping) ColumnOwner(column string) (string, bool) {
	alias, ok := m.columnOwnerMap[column]
	return alias, ok
}

// Field returns the entity field of a field column.
func (m *ResultSetMapping) Field(column string) (string, bool) {
	field, ok := m.fieldMappings[column]
	return field, ok
}

// Meta returns the meta name of a meta column.
func (m *ResultSetMapping) Meta(column string) (string, bool) {
	name, ok := m.metaMappings[column]
	return name, ok
}

// Scalar returns the result name of a scalar column.
func (m *ResultSetMapping) Scalar(column string) (string, bool) {
	name, ok := m.scalarMappings[column]
	return name, ok
}

// ScalarColumns returns scalar columns in declaration order.
func (m *ResultSetMapping) ScalarColumns() []string {
	return append([]string(nil), m.scalarOrder...)
}

// FieldColumns returns the field columns owned by alias, sorted.
func (m *ResultSetMapping) FieldColumns(alias string) []string {
	var columns []string
	for column, owner := range m.columnOwnerMap {
		if owner != alias {
			continue
		}
		if _, ok := m.fieldMappings[column]; ok {
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)
	return columns
}

// Validate checks the structural integrity of the mapping: parents exist and
// are declared before their children, and every owned column belongs to a
// declared alias. With a non-nil registry it also checks classes, relation
// fields and index fields.
func (m *ResultSetMapping) Validate(registry metadata.Registry) error {
	position := make(map[string]int, len(m.aliasOrder))
	for i, alias := range m.aliasOrder {
		position[alias] = i
	}

	for _, alias := range m.aliasOrder {
		class := m.aliasMap[alias]
		var meta *metadata.ClassMetadata
		if registry != nil {
			var err error
			if meta, err = registry.ClassMetadata(class); err != nil {
				return &Error{Alias: alias, Reason: fmt.Sprintf("unknown class %q", class)}
			}
		}
		if parent, ok := m.parentAliasMap[alias]; ok {
			parentPos, known := position[parent]
			if !known {
				return &Error{Alias: alias, Reason: fmt.Sprintf("parent alias %q is not declared", parent)}
			}
			if parentPos >= position[alias] {
				return &Error{Alias: alias, Reason: fmt.Sprintf("parent alias %q is declared after its child", parent)}
			}
			relation := m.relationMap[alias]
			if relation == "" {
				return &Error{Alias: alias, Reason: "joined alias has no relation field"}
			}
			if registry != nil {
				parentMeta, err := registry.ClassMetadata(m.aliasMap[parent])
				if err == nil {
					if _, ok := parentMeta.Association(relation); !ok {
						return &Error{Alias: alias, Reason: fmt.Sprintf("class %q has no association %q", parentMeta.Name, relation)}
					}
				}
			}
		}
		if indexBy := m.indexByMap[alias]; indexBy != "" && meta != nil && !meta.HasField(indexBy) {
			return &Error{Alias: alias, Reason: fmt.Sprintf("index field %q is not mapped on %q", indexBy, class)}
		}
	}

	for column, alias := range m.columnOwnerMap {
		if _, ok := m.aliasMap[alias]; !ok {
			return &Error{Alias: alias, Reason: fmt.Sprintf("column %q belongs to an undeclared alias", column)}
		}
	}
	return nil
}

// Error reports a malformed mapping.
type Error struct {
	Alias  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("result set mapping: alias %q: %s", e.Alias, e.Reason)
}
