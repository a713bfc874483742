package hydration

import (
	"context"

	"rowgraph/internal/collection"
	"rowgraph/internal/metadata"
)

// ProxyFactory builds placeholders for lazily loaded single-valued associations.
type ProxyFactory interface {
	AssociationProxy(owner any, assoc *metadata.Association, joinValues map[string]any) (any, error)
}

// EagerLoader loads associations that are not fetch-joined but declared eager.
// Loads run synchronously and must use their own hydration runs.
type EagerLoader interface {
	// LoadOne loads the target of a single-valued association. joinValues
	// holds the owner's join column values for owning associations and is
	// nil for inverse ones.
	LoadOne(ctx context.Context, owner any, assoc *metadata.Association, joinValues map[string]any) (any, error)
	// LoadCollection populates coll, marks it initialized and snapshots it.
	LoadCollection(ctx context.Context, owner any, assoc *metadata.Association, coll *collection.Collection) error
}

// Reference is an uninitialized placeholder for a related entity. Identifier
// holds the referenced column values the target can later be loaded by.
type Reference struct {
	Class      string
	Identifier map[string]any
}

// ReferenceFactory is the default ProxyFactory. It returns *Reference values.
type ReferenceFactory struct{}

// AssociationProxy implements ProxyFactory.
func (ReferenceFactory) AssociationProxy(_ any, assoc *metadata.Association, joinValues map[string]any) (any, error) {
	identifier := make(map[string]any, len(assoc.JoinColumns))
	for _, jc := range assoc.JoinColumns {
		identifier[jc.ReferencedColumnName] = joinValues[jc.Name]
	}
	return &Reference{Class: assoc.TargetEntity, Identifier: identifier}, nil
}
