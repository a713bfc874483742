package hydration

import (
	"context"
	"fmt"
	"log/slog"

	"rowgraph/internal/collection"
	"rowgraph/internal/metadata"
)

// hydrateJoined attaches the entity of a joined alias to its parent.
func (r *Run) hydrateJoined(ctx context.Context, alias, parentAlias string, data *rowData, current map[string]resolved) error {
	parent, ok := current[parentAlias]
	if !ok || parent.entity == nil {
		if !data.nonEmpty[alias] {
			return nil
		}
		return &MappingIntegrityError{
			Alias:       alias,
			ParentAlias: parentAlias,
			Row:         r.rowNum,
			Reason:      "parent entity was not resolved for this row",
		}
	}
	if parent.class == nil {
		return &MappingIntegrityError{
			Alias:       alias,
			ParentAlias: parentAlias,
			Row:         r.rowNum,
			Reason:      "parent entity has no class metadata",
		}
	}

	relation := r.rsm.Relation(alias)
	assoc, ok := parent.class.Association(relation)
	if !ok {
		if !data.nonEmpty[alias] {
			return nil
		}
		return &MappingIntegrityError{
			Alias:       alias,
			ParentAlias: parentAlias,
			Row:         r.rowNum,
			Reason:      fmt.Sprintf("class %q has no association %q", parent.class.Name, relation),
		}
	}

	if assoc.Kind.IsToMany() {
		return r.linkCollection(ctx, alias, parentAlias, parent, assoc, data, current)
	}
	return r.linkSingle(ctx, alias, parent, assoc, data, current)
}

// linkCollection adds the child of the row to the parent's collection once
// per parent and child identity.
func (r *Run) linkCollection(ctx context.Context, alias, parentAlias string, parent resolved, assoc *metadata.Association, data *rowData, current map[string]resolved) error {
	if !data.nonEmpty[alias] {
		r.ensureEmptyCollection(parent, assoc)
		return nil
	}

	coll, ok := r.collections[ownerField{parent.entity, assoc.FieldName}]
	if !ok {
		coll = r.relatedCollection(parent, assoc)
	}

	path := parentAlias + "." + alias
	byParent, ok := r.collectionIndex[path]
	if !ok {
		byParent = make(map[string]map[string]any)
		r.collectionIndex[path] = byParent
	}
	parentToken := data.ids.token(parentAlias)
	seen, ok := byParent[parentToken]
	if !ok {
		seen = make(map[string]any)
		byParent[parentToken] = seen
	}

	childToken := data.ids.token(alias)
	if key, ok := seen[childToken]; ok {
		if element, ok := coll.Get(key); ok {
			current[alias] = resolved{entity: element, class: r.classOf(element, r.aliasClasses[alias].Name)}
			return nil
		}
	}

	child, err := r.resolveEntity(ctx, alias, data)
	if err != nil {
		return err
	}

	key, exists := coll.KeyOf(child.entity)
	if !exists {
		if indexBy := r.rsm.IndexBy(alias); indexBy != "" {
			key = data.bucket(alias).fields[indexBy]
			coll.HydrateSet(key, child.entity)
		} else {
			key = coll.HydrateAdd(child.entity)
		}
		r.linkInverse(parent, assoc, child)
	}
	seen[childToken] = key
	current[alias] = child
	return nil
}

// linkSingle sets a single-valued association of the parent. The first
// non-empty row of a run decides the value; an unset field, a proxy or the
// Refresh hint let the row write it.
func (r *Run) linkSingle(ctx context.Context, alias string, parent resolved, assoc *metadata.Association, data *rowData, current map[string]resolved) error {
	key := ownerField{parent.entity, assoc.FieldName}
	accessor := parent.class.Accessor(assoc.FieldName)
	value := accessor.Get(parent.entity)

	if r.singles[key] || (!isUnset(value) && !r.hints.Refresh) {
		if r.singles[key] && data.nonEmpty[alias] {
			r.h.logger.Debug("single-valued association already set in this run, keeping first value",
				slog.String("alias", alias),
				slog.String("field", assoc.FieldName),
			)
		}
		if !isUnset(value) {
			current[alias] = resolved{entity: value, class: r.classOf(value, r.aliasClasses[alias].Name)}
		}
		return nil
	}

	if !data.nonEmpty[alias] {
		accessor.Set(parent.entity, nil)
		r.h.uow.SetOriginalEntityProperty(parent.entity, assoc.FieldName, nil)
		return nil
	}

	child, err := r.resolveEntity(ctx, alias, data)
	if err != nil {
		return err
	}
	accessor.Set(parent.entity, child.entity)
	r.h.uow.SetOriginalEntityProperty(parent.entity, assoc.FieldName, child.entity)
	r.singles[key] = true
	if assoc.Kind == metadata.OneToOne {
		r.linkBackReference(parent, assoc, child)
	}
	current[alias] = child
	return nil
}

// linkInverse keeps the other side of a bidirectional to-many association
// consistent with a newly linked child.
func (r *Run) linkInverse(parent resolved, assoc *metadata.Association, child resolved) {
	inverse := assoc.InverseField()
	if inverse == "" || child.class == nil {
		return
	}
	switch assoc.Kind {
	case metadata.ManyToMany:
		inverseAssoc, ok := child.class.Association(inverse)
		if !ok {
			return
		}
		coll, ok := r.collections[ownerField{child.entity, inverse}]
		if !ok {
			coll = r.relatedCollection(child, inverseAssoc)
		}
		if !coll.Contains(parent.entity) {
			coll.HydrateAdd(parent.entity)
		}
	case metadata.OneToMany:
		r.linkBackReference(parent, assoc, child)
	}
}

// linkBackReference points the child's inverse single-valued field at the
// parent unless it already holds a loaded entity.
func (r *Run) linkBackReference(parent resolved, assoc *metadata.Association, child resolved) {
	inverse := assoc.InverseField()
	if inverse == "" || child.class == nil {
		return
	}
	if _, ok := child.class.Association(inverse); !ok {
		return
	}
	accessor := child.class.Accessor(inverse)
	if !isUnset(accessor.Get(child.entity)) {
		return
	}
	accessor.Set(child.entity, parent.entity)
	r.h.uow.SetOriginalEntityProperty(child.entity, inverse, parent.entity)
}

// relatedCollection prepares owner.field to receive rows of this run: an
// existing collection is emptied, anything else is replaced by a new one.
func (r *Run) relatedCollection(owner resolved, assoc *metadata.Association) *collection.Collection {
	accessor := owner.class.Accessor(assoc.FieldName)

	var coll *collection.Collection
	switch v := accessor.Get(owner.entity).(type) {
	case *collection.Collection:
		coll = v
		coll.Clear()
		coll.SetOwner(owner.entity, assoc.FieldName)
	case []any:
		coll = collection.New(owner.entity, assoc.FieldName, v)
	default:
		coll = collection.New(owner.entity, assoc.FieldName, nil)
	}
	coll.SetDirty(false)
	coll.SetInitialized(true)

	accessor.Set(owner.entity, coll)
	r.h.uow.SetOriginalEntityProperty(owner.entity, assoc.FieldName, coll)
	key := ownerField{owner.entity, assoc.FieldName}
	r.collections[key] = coll
	r.collectionOrder = append(r.collectionOrder, coll)
	return coll
}

// ensureEmptyCollection makes a fetch-joined collection with no matching rows
// initialized and empty, leaving collections touched earlier in the run or
// already loaded alone.
func (r *Run) ensureEmptyCollection(owner resolved, assoc *metadata.Association) {
	if _, ok := r.collections[ownerField{owner.entity, assoc.FieldName}]; ok {
		return
	}
	if coll, ok := owner.class.Accessor(assoc.FieldName).Get(owner.entity).(*collection.Collection); ok && coll.IsInitialized() {
		return
	}
	r.relatedCollection(owner, assoc)
}

// isUnset reports whether a single-valued field may still be written by a row.
func isUnset(value any) bool {
	if value == nil {
		return true
	}
	_, ok := value.(*Reference)
	return ok
}
