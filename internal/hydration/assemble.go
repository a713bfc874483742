package hydration

import (
	"context"
	"fmt"
	"log/slog"

	"rowgraph/internal/collection"
	"rowgraph/internal/metadata"
)

// resolveEntity returns the managed instance of alias for the current row,
// asking the unit of work to construct it on first sight.
func (r *Run) resolveEntity(ctx context.Context, alias string, data *rowData) (resolved, error) {
	class := r.aliasClasses[alias]

	if column, ok := r.rsm.DiscriminatorColumn(alias); ok {
		if value := data.discriminators[alias]; value != nil {
			concrete, err := r.concreteClass(alias, class, tokenString(value))
			if err != nil {
				return resolved{}, err
			}
			class = concrete
		} else {
			r.h.logger.Debug("discriminator column is null, using alias class",
				slog.String("alias", alias),
				slog.String("column", column),
			)
		}
	}

	b := data.bucket(alias)
	entity, created, err := r.h.uow.CreateEntity(class, b.fields, r.hints)
	if err != nil {
		return resolved{}, fmt.Errorf("hydration: row %d: alias %q: %w", r.rowNum, alias, err)
	}
	ref := resolved{entity: entity, class: class}
	if !created {
		return ref, nil
	}

	r.stats.Entities++
	if r.hints.PartialObjects {
		return ref, nil
	}
	if err := r.initAssociations(ctx, ref, b); err != nil {
		return resolved{}, err
	}
	return ref, nil
}

func (r *Run) concreteClass(alias string, class *metadata.ClassMetadata, value string) (*metadata.ClassMetadata, error) {
	root := class
	if class.RootEntityName != class.Name {
		c, err := r.h.classMetadata(class.RootEntityName)
		if err != nil {
			return nil, err
		}
		root = c
	}
	name, ok := root.ClassForDiscriminator(value)
	if !ok {
		return nil, &UnknownDiscriminatorError{Alias: alias, Class: root.Name, Value: value}
	}
	return r.h.classMetadata(name)
}

// initAssociations gives every association of a newly created entity that is
// not fetch-joined in this run its lazy or eager initial value.
func (r *Run) initAssociations(ctx context.Context, ref resolved, b *bucket) error {
	class := ref.class
	for _, name := range class.AssociationNames() {
		if r.isFetched(class, name) {
			continue
		}
		assoc, _ := class.Association(name)
		accessor := class.Accessor(name)

		switch {
		case assoc.Kind.IsToOne() && assoc.IsOwningSide:
			joinValues := make(map[string]any, len(assoc.JoinColumns))
			allNull := true
			for _, jc := range assoc.JoinColumns {
				value := b.meta[jc.Name]
				joinValues[jc.Name] = value
				if value != nil {
					allNull = false
				}
			}
			if allNull {
				accessor.Set(ref.entity, nil)
				r.h.uow.SetOriginalEntityProperty(ref.entity, name, nil)
				continue
			}
			if assoc.Fetch == metadata.FetchEager && r.h.loader != nil {
				if err := r.eagerLoadOne(ctx, ref, assoc, joinValues); err != nil {
					return err
				}
				continue
			}
			proxy, err := r.h.proxies.AssociationProxy(ref.entity, assoc, joinValues)
			if err != nil {
				return fmt.Errorf("hydration: proxy for %s.%s: %w", class.Name, name, err)
			}
			accessor.Set(ref.entity, proxy)
			r.h.uow.SetOriginalEntityProperty(ref.entity, name, proxy)

		case assoc.Kind.IsToOne():
			if assoc.Fetch == metadata.FetchEager && r.h.loader != nil {
				if err := r.eagerLoadOne(ctx, ref, assoc, nil); err != nil {
					return err
				}
			}

		default:
			if _, ok := accessor.Get(ref.entity).(*collection.Collection); ok {
				continue
			}
			elements, _ := accessor.Get(ref.entity).([]any)
			coll := collection.New(ref.entity, name, elements)
			coll.SetInitialized(false)
			accessor.Set(ref.entity, coll)
			r.h.uow.SetOriginalEntityProperty(ref.entity, name, coll)
			if assoc.Fetch == metadata.FetchEager && r.h.loader != nil {
				if err := r.eagerLoadCollection(ctx, ref, assoc, coll); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Run) eagerLoadOne(ctx context.Context, ref resolved, assoc *metadata.Association, joinValues map[string]any) error {
	return r.eager(ctx, ref, assoc, func(ctx context.Context) error {
		target, err := r.h.loader.LoadOne(ctx, ref.entity, assoc, joinValues)
		if err != nil {
			return err
		}
		ref.class.Accessor(assoc.FieldName).Set(ref.entity, target)
		r.h.uow.SetOriginalEntityProperty(ref.entity, assoc.FieldName, target)
		return nil
	})
}

func (r *Run) eagerLoadCollection(ctx context.Context, ref resolved, assoc *metadata.Association, coll *collection.Collection) error {
	return r.eager(ctx, ref, assoc, func(ctx context.Context) error {
		return r.h.loader.LoadCollection(ctx, ref.entity, assoc, coll)
	})
}

// eager runs load now or, with DeferEagerLoads, when the run finishes.
func (r *Run) eager(ctx context.Context, ref resolved, assoc *metadata.Association, load func(context.Context) error) error {
	run := func(ctx context.Context) error {
		if r.h.metrics != nil {
			r.h.metrics.RecordEagerLoad(ctx, assoc.Kind.String())
		}
		if err := load(ctx); err != nil {
			return fmt.Errorf("hydration: eager load of %s.%s: %w", ref.class.Name, assoc.FieldName, err)
		}
		return nil
	}
	if r.hints.DeferEagerLoads {
		r.deferred = append(r.deferred, run)
		return nil
	}
	return run(ctx)
}
