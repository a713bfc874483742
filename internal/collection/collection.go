// Package collection implements the managed collection held by to-many
// association fields.
package collection

// Collection is an ordered, optionally keyed, container of related entities.
// It tracks whether it has been populated (initialized) and whether it has
// been modified since its last snapshot (dirty).
//
// Elements are compared by ==, so entities must be comparable values such as
// pointers.
type Collection struct {
	owner       any
	field       string
	keys        []any
	elements    []any
	positions   map[any]int
	nextKey     int
	snapshot    []any
	snapshotted bool
	initialized bool
	dirty       bool
}

// New creates an initialized collection for owner.field holding elements.
func New(owner any, field string, elements []any) *Collection {
	c := &Collection{
		owner:       owner,
		field:       field,
		positions:   make(map[any]int),
		initialized: true,
	}
	for _, element := range elements {
		c.HydrateAdd(element)
	}
	return c
}

// Owner returns the entity holding the collection.
func (c *Collection) Owner() any { return c.owner }

// Field returns the association field the collection belongs to.
func (c *Collection) Field() string { return c.field }

// SetOwner reassigns the owning entity and field.
func (c *Collection) SetOwner(owner any, field string) {
	c.owner = owner
	c.field = field
}

// IsInitialized reports whether the collection holds its loaded contents.
func (c *Collection) IsInitialized() bool { return c.initialized }

// SetInitialized marks the collection as loaded or deferred.
func (c *Collection) SetInitialized(initialized bool) { c.initialized = initialized }

// IsDirty reports whether the collection changed since its last snapshot.
func (c *Collection) IsDirty() bool { return c.dirty }

// SetDirty sets the dirty flag.
func (c *Collection) SetDirty(dirty bool) { c.dirty = dirty }

// HydrateAdd appends element under the next sequential key without marking
// the collection dirty, and returns that key.
func (c *Collection) HydrateAdd(element any) any {
	for {
		if _, taken := c.positions[c.nextKey]; !taken {
			break
		}
		c.nextKey++
	}
	key := c.nextKey
	c.nextKey++
	c.put(key, element)
	return key
}

// HydrateSet stores element under key without marking the collection dirty.
// An existing element under the same key is replaced in place.
func (c *Collection) HydrateSet(key any, element any) {
	c.put(key, element)
}

func (c *Collection) put(key any, element any) {
	if pos, ok := c.positions[key]; ok {
		c.elements[pos] = element
		return
	}
	c.positions[key] = len(c.elements)
	c.keys = append(c.keys, key)
	c.elements = append(c.elements, element)
}

// Add appends element and marks the collection dirty.
func (c *Collection) Add(element any) {
	c.HydrateAdd(element)
	c.dirty = true
}

// Get returns the element stored under key.
func (c *Collection) Get(key any) (any, bool) {
	pos, ok := c.positions[key]
	if !ok {
		return nil, false
	}
	return c.elements[pos], true
}

// ContainsKey reports whether key holds an element.
func (c *Collection) ContainsKey(key any) bool {
	_, ok := c.positions[key]
	return ok
}

// Contains reports whether element is held by the collection.
func (c *Collection) Contains(element any) bool {
	_, ok := c.KeyOf(element)
	return ok
}

// KeyOf returns the key element is stored under.
func (c *Collection) KeyOf(element any) (any, bool) {
	for i, e := range c.elements {
		if e == element {
			return c.keys[i], true
		}
	}
	return nil, false
}

// Len returns the number of elements.
func (c *Collection) Len() int { return len(c.elements) }

// Elements returns the elements in insertion order.
func (c *Collection) Elements() []any {
	return append([]any(nil), c.elements...)
}

// Keys returns the keys in insertion order.
func (c *Collection) Keys() []any {
	return append([]any(nil), c.keys...)
}

// Clear removes all elements. Flags are left untouched.
func (c *Collection) Clear() {
	c.keys = nil
	c.elements = nil
	c.positions = make(map[any]int)
	c.nextKey = 0
}

// TakeSnapshot records the current elements as the persisted baseline and
// resets the dirty flag.
func (c *Collection) TakeSnapshot() {
	c.snapshot = append([]any(nil), c.elements...)
	c.snapshotted = true
	c.dirty = false
}

// Snapshot returns the baseline recorded by the last TakeSnapshot.
func (c *Collection) Snapshot() []any {
	return append([]any(nil), c.snapshot...)
}

// HasSnapshot reports whether TakeSnapshot has been called.
func (c *Collection) HasSnapshot() bool { return c.snapshotted }
