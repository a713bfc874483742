// Package metadata describes entity classes for hydration: fields, identifiers,
// associations, and single-table inheritance. It also provides a registry that
// loads class definitions from YAML mapping documents.
package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// AssociationKind is the cardinality of an association.
type AssociationKind int

const (
	OneToOne AssociationKind = iota + 1
	ManyToOne
	OneToMany
	ManyToMany
)

// IsToOne reports whether the association holds a single reference.
func (k AssociationKind) IsToOne() bool {
	return k == OneToOne || k == ManyToOne
}

// IsToMany reports whether the association holds a collection.
func (k AssociationKind) IsToMany() bool {
	return k == OneToMany || k == ManyToMany
}

func (k AssociationKind) String() string {
	switch k {
	case OneToOne:
		return "one_to_one"
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ParseAssociationKind converts a mapping document value into an AssociationKind.
func ParseAssociationKind(value string) (AssociationKind, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(value)))
	switch normalized {
	case "one_to_one", "onetoone":
		return OneToOne, nil
	case "many_to_one", "manytoone":
		return ManyToOne, nil
	case "one_to_many", "onetomany":
		return OneToMany, nil
	case "many_to_many", "manytomany":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown association kind %q", value)
	}
}

// FetchMode controls how non-fetch-joined associations are initialized.
type FetchMode int

const (
	FetchLazy FetchMode = iota
	FetchEager
)

func (m FetchMode) String() string {
	if m == FetchEager {
		return "eager"
	}
	return "lazy"
}

// ParseFetchMode converts a mapping document value into a FetchMode.
// An empty value means lazy.
func ParseFetchMode(value string) (FetchMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "lazy":
		return FetchLazy, nil
	case "eager":
		return FetchEager, nil
	default:
		return FetchLazy, fmt.Errorf("unknown fetch mode %q", value)
	}
}

// JoinColumn links a local foreign key column to a column on the referenced table.
type JoinColumn struct {
	Name                 string
	ReferencedColumnName string
}

// JoinTable describes the link table of an owning many-to-many association.
// JoinColumns reference the owning class, InverseJoinColumns the target class.
type JoinTable struct {
	Name               string
	JoinColumns        []JoinColumn
	InverseJoinColumns []JoinColumn
}

// Association describes a relation field on a class.
type Association struct {
	FieldName    string
	SourceEntity string
	TargetEntity string
	Kind         AssociationKind
	IsOwningSide bool
	MappedBy     string
	InversedBy   string
	Fetch        FetchMode
	JoinColumns  []JoinColumn
	JoinTable    *JoinTable
	IndexBy      string
}

// IsBidirectional reports whether the other side of the association is mapped.
func (a *Association) IsBidirectional() bool {
	return a.MappedBy != "" || a.InversedBy != ""
}

// InverseField returns the field on the target class that mirrors this association.
func (a *Association) InverseField() string {
	if a.IsOwningSide {
		return a.InversedBy
	}
	return a.MappedBy
}

// FieldMapping maps an entity field to a table column.
type FieldMapping struct {
	FieldName  string
	ColumnName string
	Type       string
}

// ClassMetadata is the hydration view of an entity class.
type ClassMetadata struct {
	Name                string
	RootEntityName      string
	ParentClass         string
	Table               string
	IdentifierFields    []string
	Fields              map[string]*FieldMapping
	Associations        map[string]*Association
	DiscriminatorColumn string
	DiscriminatorValue  string
	DiscriminatorMap    map[string]string

	// New constructs an empty instance. Defaults to a map-backed Entity.
	New       func() any
	accessors map[string]FieldAccessor
}

// NewClassMetadata returns metadata for a class backed by Entity instances.
func NewClassMetadata(name, table string) *ClassMetadata {
	return &ClassMetadata{
		Name:           name,
		RootEntityName: name,
		Table:          table,
		Fields:         make(map[string]*FieldMapping),
		Associations:   make(map[string]*Association),
		accessors:      make(map[string]FieldAccessor),
	}
}

// AddField registers a field mapping. An empty column defaults to the field name.
func (c *ClassMetadata) AddField(field, column, typ string) *ClassMetadata {
	if column == "" {
		column = field
	}
	c.Fields[field] = &FieldMapping{FieldName: field, ColumnName: column, Type: typ}
	return c
}

// AddAssociation registers an association. SourceEntity is set to this class.
func (c *ClassMetadata) AddAssociation(assoc *Association) *ClassMetadata {
	assoc.SourceEntity = c.Name
	c.Associations[assoc.FieldName] = assoc
	return c
}

// Association returns the association mapped on field.
func (c *ClassMetadata) Association(field string) (*Association, bool) {
	assoc, ok := c.Associations[field]
	return assoc, ok
}

// HasField reports whether field is a mapped scalar field.
func (c *ClassMetadata) HasField(field string) bool {
	_, ok := c.Fields[field]
	return ok
}

// IsIdentifier reports whether field is part of the identifier.
func (c *ClassMetadata) IsIdentifier(field string) bool {
	for _, id := range c.IdentifierFields {
		if id == field {
			return true
		}
	}
	return false
}

// FieldForColumn returns the field mapped to a column name.
func (c *ClassMetadata) FieldForColumn(column string) (string, bool) {
	for name, fm := range c.Fields {
		if strings.EqualFold(fm.ColumnName, column) {
			return name, true
		}
	}
	return "", false
}

// FieldNames returns mapped scalar fields in a stable order.
func (c *ClassMetadata) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssociationNames returns association fields in a stable order.
func (c *ClassMetadata) AssociationNames() []string {
	names := make([]string, 0, len(c.Associations))
	for name := range c.Associations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewInstance constructs an empty entity of this class.
func (c *ClassMetadata) NewInstance() any {
	if c.New != nil {
		return c.New()
	}
	return NewEntity(c.Name)
}

// SetAccessor overrides the accessor for a field.
func (c *ClassMetadata) SetAccessor(field string, accessor FieldAccessor) {
	if c.accessors == nil {
		c.accessors = make(map[string]FieldAccessor)
	}
	c.accessors[field] = accessor
}

// Accessor returns the accessor for a field or association.
// Without an override the accessor reads and writes Entity fields.
func (c *ClassMetadata) Accessor(field string) FieldAccessor {
	if accessor, ok := c.accessors[field]; ok {
		return accessor
	}
	return EntityField(field)
}

// IdentifierValues reads the identifier values of an instance in identifier order.
func (c *ClassMetadata) IdentifierValues(entity any) []any {
	values := make([]any, len(c.IdentifierFields))
	for i, field := range c.IdentifierFields {
		values[i] = c.Accessor(field).Get(entity)
	}
	return values
}

// ClassForDiscriminator maps a discriminator value to a concrete class name.
func (c *ClassMetadata) ClassForDiscriminator(value string) (string, bool) {
	name, ok := c.DiscriminatorMap[value]
	return name, ok
}

// IsInheritanceRoot reports whether this class declares a discriminator map.
func (c *ClassMetadata) IsInheritanceRoot() bool {
	return c.DiscriminatorColumn != "" && c.Name == c.RootEntityName
}
