package metadata

import "sort"

// FieldAccessor reads and writes one field of an entity instance.
type FieldAccessor interface {
	Get(entity any) any
	Set(entity any, value any)
}

// Named is implemented by entities that know their class name.
type Named interface {
	ClassName() string
}

// Entity is a generic entity instance holding its fields in a map.
type Entity struct {
	class  string
	fields map[string]any
}

// NewEntity creates an empty entity of the given class.
func NewEntity(class string) *Entity {
	return &Entity{class: class, fields: make(map[string]any)}
}

// ClassName returns the entity's class.
func (e *Entity) ClassName() string { return e.class }

// Get returns the value of field, or nil if unset.
func (e *Entity) Get(field string) any { return e.fields[field] }

// Set assigns field.
func (e *Entity) Set(field string, value any) { e.fields[field] = value }

// Has reports whether field has been assigned, including to nil.
func (e *Entity) Has(field string) bool {
	_, ok := e.fields[field]
	return ok
}

// FieldNames returns the assigned fields in sorted order.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntityField is a FieldAccessor over Entity instances.
type EntityField string

// Get implements FieldAccessor. Non-Entity values read as nil.
func (f EntityField) Get(entity any) any {
	if e, ok := entity.(*Entity); ok {
		return e.Get(string(f))
	}
	return nil
}

// Set implements FieldAccessor. Non-Entity values are ignored.
func (f EntityField) Set(entity any, value any) {
	if e, ok := entity.(*Entity); ok {
		e.Set(string(f), value)
	}
}

// AccessorFuncs adapts a pair of functions to FieldAccessor, for typed entities.
type AccessorFuncs struct {
	GetFunc func(entity any) any
	SetFunc func(entity any, value any)
}

func (a AccessorFuncs) Get(entity any) any { return a.GetFunc(entity) }

func (a AccessorFuncs) Set(entity any, value any) { a.SetFunc(entity, value) }
