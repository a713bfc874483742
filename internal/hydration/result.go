package hydration

// ResultKind is the shape of a hydration result.
type ResultKind int

const (
	// ListResult is an ordered sequence of root entities.
	ListResult ResultKind = iota
	// IndexedResult is an insertion-ordered mapping keyed by a root field.
	IndexedResult
	// MixedResult is an ordered sequence of entity plus scalar tuples.
	MixedResult
)

// MixedRow is one entry of a mixed result. Entity is nil for rows that carry
// only scalars. Key holds the index value when the root alias is indexed.
type MixedRow struct {
	Entity  any
	Key     any
	Scalars map[string]any
	names   []string
}

// ScalarNames returns scalar result names in the order they were attached.
func (r *MixedRow) ScalarNames() []string {
	return append([]string(nil), r.names...)
}

func (r *MixedRow) setScalar(name string, value any) {
	if r.Scalars == nil {
		r.Scalars = make(map[string]any)
	}
	if _, ok := r.Scalars[name]; !ok {
		r.names = append(r.names, name)
	}
	r.Scalars[name] = value
}

// Result is the top-level output of a hydration run.
type Result struct {
	kind     ResultKind
	entities []any
	keys     []any
	indexed  map[any]int
	rows     []*MixedRow
}

func newResult(kind ResultKind) *Result {
	r := &Result{kind: kind}
	if kind == IndexedResult {
		r.indexed = make(map[any]int)
	}
	return r
}

// Kind returns the result shape.
func (r *Result) Kind() ResultKind { return r.kind }

// Len returns the number of entries.
func (r *Result) Len() int {
	if r.kind == MixedResult {
		return len(r.rows)
	}
	return len(r.entities)
}

// Entities returns root entities in insertion order. For mixed results the
// entity of each row is returned, including nil entries.
func (r *Result) Entities() []any {
	if r.kind == MixedResult {
		out := make([]any, len(r.rows))
		for i, row := range r.rows {
			out[i] = row.Entity
		}
		return out
	}
	return append([]any(nil), r.entities...)
}

// Keys returns the index keys of an indexed result in insertion order.
func (r *Result) Keys() []any {
	return append([]any(nil), r.keys...)
}

// Get returns the entity stored under key in an indexed result.
func (r *Result) Get(key any) (any, bool) {
	pos, ok := r.indexed[key]
	if !ok {
		return nil, false
	}
	return r.entities[pos], true
}

// Rows returns the tuples of a mixed result.
func (r *Result) Rows() []*MixedRow {
	return append([]*MixedRow(nil), r.rows...)
}

// appendEntity adds a root entity and returns its position.
func (r *Result) appendEntity(entity any) int {
	r.entities = append(r.entities, entity)
	return len(r.entities) - 1
}

// setIndexed stores entity under key, replacing an existing entry in place.
func (r *Result) setIndexed(key any, entity any) {
	if pos, ok := r.indexed[key]; ok {
		r.entities[pos] = entity
		return
	}
	r.indexed[key] = len(r.entities)
	r.keys = append(r.keys, key)
	r.entities = append(r.entities, entity)
}

// appendRow adds a mixed tuple and returns its position.
func (r *Result) appendRow(row *MixedRow) int {
	r.rows = append(r.rows, row)
	return len(r.rows) - 1
}
