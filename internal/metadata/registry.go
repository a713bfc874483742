package metadata

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownClass is matched by errors returned for unregistered classes.
var ErrUnknownClass = errors.New("unknown class")

// UnknownClassError reports a lookup of a class the registry does not know.
type UnknownClassError struct {
	Name string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("metadata: unknown class %q", e.Name)
}

// Is reports whether target is ErrUnknownClass.
func (e *UnknownClassError) Is(target error) bool {
	return target == ErrUnknownClass
}

// Registry supplies class metadata by name. Implementations must be safe for
// concurrent use and return the same metadata for repeated lookups.
type Registry interface {
	ClassMetadata(name string) (*ClassMetadata, error)
}

// MemoryRegistry is an in-memory Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	classes map[string]*ClassMetadata
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{classes: make(map[string]*ClassMetadata)}
}

// Register adds classes to the registry. Subclasses must be registered after
// their parent; they inherit the parent's identifier, fields, associations and
// discriminator settings.
func (r *MemoryRegistry) Register(classes ...*ClassMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, class := range classes {
		if class.Name == "" {
			return fmt.Errorf("metadata: class name is required")
		}
		if class.ParentClass != "" {
			parent, ok := r.classes[class.ParentClass]
			if !ok {
				return fmt.Errorf("metadata: parent class %q of %q is not registered", class.ParentClass, class.Name)
			}
			inherit(class, parent)
		}
		if class.RootEntityName == "" {
			class.RootEntityName = class.Name
		}
		if class.Fields == nil {
			class.Fields = make(map[string]*FieldMapping)
		}
		if class.Associations == nil {
			class.Associations = make(map[string]*Association)
		}
		for _, assoc := range class.Associations {
			if assoc.SourceEntity == "" {
				assoc.SourceEntity = class.Name
			}
		}
		r.classes[class.Name] = class
	}
	return nil
}

func inherit(child, parent *ClassMetadata) {
	child.RootEntityName = parent.RootEntityName
	if child.Table == "" {
		child.Table = parent.Table
	}
	if len(child.IdentifierFields) == 0 {
		child.IdentifierFields = append([]string(nil), parent.IdentifierFields...)
	}
	if child.Fields == nil {
		child.Fields = make(map[string]*FieldMapping)
	}
	for name, fm := range parent.Fields {
		if _, ok := child.Fields[name]; !ok {
			child.Fields[name] = fm
		}
	}
	if child.Associations == nil {
		child.Associations = make(map[string]*Association)
	}
	for name, assoc := range parent.Associations {
		if _, ok := child.Associations[name]; !ok {
			child.Associations[name] = assoc
		}
	}
	child.DiscriminatorColumn = parent.DiscriminatorColumn
	child.DiscriminatorMap = parent.DiscriminatorMap
	for name, accessor := range parent.accessors {
		if _, ok := child.accessors[name]; !ok {
			child.SetAccessor(name, accessor)
		}
	}
}

// ClassMetadata implements Registry.
func (r *MemoryRegistry) ClassMetadata(name string) (*ClassMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	class, ok := r.classes[name]
	if !ok {
		return nil, &UnknownClassError{Name: name}
	}
	return class, nil
}

// Names returns registered class names in sorted order.
func (r *MemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassForTable finds the inheritance root mapped to table.
func (r *MemoryRegistry) ClassForTable(table string) (*ClassMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, class := range r.classes {
		if class.Table == table && class.Name == class.RootEntityName {
			return class, true
		}
	}
	return nil, false
}
