package hydration

import (
	"fmt"
	"sync"

	"rowgraph/internal/metadata"
)

// UnitOfWork creates managed entity instances and records their persisted
// baseline values.
type UnitOfWork interface {
	// CreateEntity returns the managed instance of class identified by data,
	// constructing it on first sight. created reports whether a new instance
	// was constructed. The same identity must yield the same instance for as
	// long as the unit of work lives, across hydration runs.
	CreateEntity(class *metadata.ClassMetadata, data map[string]any, hints Hints) (entity any, created bool, err error)
	// SetOriginalEntityProperty records value as the last known persisted
	// value of entity.field.
	SetOriginalEntityProperty(entity any, field string, value any)
}

// IdentityMap is a process-scoped UnitOfWork keyed by inheritance root class
// and identifier values. It is safe for concurrent use.
type IdentityMap struct {
	mu        sync.Mutex
	entities  map[string]map[string]any
	originals map[any]map[string]any
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		entities:  make(map[string]map[string]any),
		originals: make(map[any]map[string]any),
	}
}

// CreateEntity implements UnitOfWork. Only fields mapped on class are
// assigned. Existing instances are returned untouched unless hints.Refresh is
// set, in which case their fields are overwritten.
func (m *IdentityMap) CreateEntity(class *metadata.ClassMetadata, data map[string]any, hints Hints) (any, bool, error) {
	if len(class.IdentifierFields) == 0 {
		return nil, false, fmt.Errorf("class %q has no identifier", class.Name)
	}
	values := make([]any, len(class.IdentifierFields))
	for i, field := range class.IdentifierFields {
		value, ok := data[field]
		if !ok {
			return nil, false, fmt.Errorf("class %q: identifier field %q missing from row data", class.Name, field)
		}
		values[i] = value
	}
	token := identityToken(values)

	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.entities[class.RootEntityName]
	if !ok {
		byID = make(map[string]any)
		m.entities[class.RootEntityName] = byID
	}
	if entity, ok := byID[token]; ok {
		if hints.Refresh {
			m.assign(class, entity, data)
		}
		return entity, false, nil
	}

	entity := class.NewInstance()
	m.assign(class, entity, data)
	byID[token] = entity
	return entity, true, nil
}

func (m *IdentityMap) assign(class *metadata.ClassMetadata, entity any, data map[string]any) {
	originals, ok := m.originals[entity]
	if !ok {
		originals = make(map[string]any, len(data))
		m.originals[entity] = originals
	}
	for field, value := range data {
		if !class.HasField(field) {
			continue
		}
		class.Accessor(field).Set(entity, value)
		originals[field] = value
	}
}

// SetOriginalEntityProperty implements UnitOfWork.
func (m *IdentityMap) SetOriginalEntityProperty(entity any, field string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	originals, ok := m.originals[entity]
	if !ok {
		originals = make(map[string]any)
		m.originals[entity] = originals
	}
	originals[field] = value
}

// OriginalEntityData returns a copy of the recorded baseline of entity.
func (m *IdentityMap) OriginalEntityData(entity any) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.originals[entity]))
	for k, v := range m.originals[entity] {
		out[k] = v
	}
	return out
}

// TryGet returns the managed instance of rootClass with the given identifier values.
func (m *IdentityMap) TryGet(rootClass string, id ...any) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[rootClass][identityToken(id)]
	return entity, ok
}

// Len returns the number of managed instances.
func (m *IdentityMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, byID := range m.entities {
		n += len(byID)
	}
	return n
}

// Clear detaches every managed instance.
func (m *IdentityMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[string]map[string]any)
	m.originals = make(map[any]map[string]any)
}
