package hydration

import (
	"context"
	"errors"
	"fmt"

	"rowgraph/internal/collection"
	"rowgraph/internal/mapping"
	"rowgraph/internal/metadata"
	"rowgraph/internal/observability"
)

// Run is the state of one hydration pass over a cursor. A Run is not safe
// for concurrent use and must not be fed rows from more than one loop.
type Run struct {
	h     *Hydrator
	rsm   *mapping.ResultSetMapping
	hints Hints

	aliases      []string
	rootAliases  []string
	aliasClasses map[string]*metadata.ClassMetadata
	fetched      map[string]map[string]bool
	columns      map[string]columnInfo

	// rootIndex maps root alias and identity token to the root seen first.
	rootIndex map[string]map[string]*rootEntry
	// collectionIndex maps parent.child alias path, parent token and child
	// token to the key the child was inserted under.
	collectionIndex map[string]map[string]map[string]any
	collections     map[ownerField]*collection.Collection
	collectionOrder []*collection.Collection
	singles         map[ownerField]bool

	result       *Result
	lastProduced *MixedRow
	deferred     []func(context.Context) error
	rowNum       int
	stats        observability.RunStats
	finished     bool
}

type ownerField struct {
	owner any
	field string
}

type rootEntry struct {
	ref resolved
	row *MixedRow
}

// resolved is the entity an alias points at for the current row.
type resolved struct {
	entity any
	class  *metadata.ClassMetadata
}

// NewRun prepares a run for rsm. It validates the mapping and resolves the
// class of every alias up front.
func (h *Hydrator) NewRun(ctx context.Context, rsm *mapping.ResultSetMapping, hints Hints) (*Run, error) {
	if err := rsm.Validate(nil); err != nil {
		var mErr *mapping.Error
		if errors.As(err, &mErr) {
			return nil, &MappingIntegrityError{Alias: mErr.Alias, Reason: mErr.Reason}
		}
		return nil, err
	}

	r := &Run{
		h:               h,
		rsm:             rsm,
		hints:           hints,
		aliases:         rsm.Aliases(),
		rootAliases:     rsm.RootAliases(),
		aliasClasses:    make(map[string]*metadata.ClassMetadata),
		fetched:         make(map[string]map[string]bool),
		columns:         make(map[string]columnInfo),
		rootIndex:       make(map[string]map[string]*rootEntry),
		collectionIndex: make(map[string]map[string]map[string]any),
		collections:     make(map[ownerField]*collection.Collection),
		singles:         make(map[ownerField]bool),
	}

	for _, alias := range r.aliases {
		name, _ := rsm.EntityName(alias)
		class, err := h.classMetadata(name)
		if err != nil {
			return nil, fmt.Errorf("hydration: alias %q: %w", alias, err)
		}
		r.aliasClasses[alias] = class
	}

	for _, alias := range r.aliases {
		parentAlias, ok := rsm.ParentAlias(alias)
		if !ok {
			r.rootIndex[alias] = make(map[string]*rootEntry)
			continue
		}
		parentClass := r.aliasClasses[parentAlias]
		relation := rsm.Relation(alias)
		assoc, owner := r.findAssociation(parentClass, relation)
		if assoc == nil {
			return nil, &MappingIntegrityError{
				Alias:       alias,
				ParentAlias: parentAlias,
				Reason:      fmt.Sprintf("class %q has no association %q", parentClass.Name, relation),
			}
		}
		r.markFetched(owner.Name, relation)
		if inverse := assoc.InverseField(); inverse != "" {
			r.markFetched(r.aliasClasses[alias].Name, inverse)
		}
	}

	r.result = newResult(r.resultKind())
	return r, nil
}

func (r *Run) resultKind() ResultKind {
	if r.rsm.IsMixed() || (len(r.rootAliases) == 0 && len(r.rsm.ScalarColumns()) > 0) {
		return MixedResult
	}
	for _, alias := range r.rootAliases {
		if r.rsm.IndexBy(alias) != "" {
			return IndexedResult
		}
	}
	return ListResult
}

// findAssociation looks up field on class and, for inheritance roots, on
// the mapped subclasses.
func (r *Run) findAssociation(class *metadata.ClassMetadata, field string) (*metadata.Association, *metadata.ClassMetadata) {
	if assoc, ok := class.Association(field); ok {
		return assoc, class
	}
	for _, name := range class.DiscriminatorMap {
		sub, err := r.h.classMetadata(name)
		if err != nil {
			continue
		}
		if assoc, ok := sub.Association(field); ok {
			return assoc, sub
		}
	}
	return nil, nil
}

func (r *Run) markFetched(class, field string) {
	fields, ok := r.fetched[class]
	if !ok {
		fields = make(map[string]bool)
		r.fetched[class] = fields
	}
	fields[field] = true
}

func (r *Run) isFetched(class *metadata.ClassMetadata, field string) bool {
	return r.fetched[class.Name][field] || r.fetched[class.RootEntityName][field]
}

// HydrateRow folds one row into the graph.
func (r *Run) HydrateRow(ctx context.Context, row Row) error {
	if r.finished {
		return ErrRunFinished
	}
	r.rowNum++
	r.stats.Rows++

	data, err := r.gather(row)
	if err != nil {
		return err
	}

	current := make(map[string]resolved, len(r.aliases))
	for _, alias := range r.aliases {
		if parentAlias, ok := r.rsm.ParentAlias(alias); ok {
			if err := r.hydrateJoined(ctx, alias, parentAlias, data, current); err != nil {
				return err
			}
			continue
		}
		if err := r.hydrateRoot(ctx, alias, data, current); err != nil {
			return err
		}
	}

	if len(data.scalars) > 0 {
		r.attachScalars(data.scalars)
	}
	return nil
}

// Finish runs deferred eager loads and snapshots every collection populated
// during the run. The run accepts no further rows afterwards.
func (r *Run) Finish(ctx context.Context) (*Result, error) {
	if r.finished {
		return r.result, nil
	}
	r.finished = true

	for _, load := range r.deferred {
		if err := load(ctx); err != nil {
			return nil, err
		}
	}
	r.deferred = nil

	for _, coll := range r.collectionOrder {
		coll.TakeSnapshot()
	}
	r.stats.Collections = int64(len(r.collectionOrder))
	return r.result, nil
}

// Result returns the result built so far.
func (r *Run) Result() *Result {
	return r.result
}

// Stats returns counters of the run.
func (r *Run) Stats() observability.RunStats {
	return r.stats
}

func (r *Run) rootClass() string {
	if len(r.rootAliases) == 0 {
		return ""
	}
	return r.aliasClasses[r.rootAliases[0]].Name
}

// classOf returns the metadata of an entity already in the graph, falling
// back to the named class when the entity does not report its own.
func (r *Run) classOf(entity any, fallback string) *metadata.ClassMetadata {
	if named, ok := entity.(metadata.Named); ok {
		if class, err := r.h.classMetadata(named.ClassName()); err == nil {
			return class
		}
	}
	class, err := r.h.classMetadata(fallback)
	if err != nil {
		return nil
	}
	return class
}
