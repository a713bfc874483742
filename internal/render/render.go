// Package render converts hydrated object graphs into trees of maps and
// slices that encode as JSON or YAML. Every entity is written in full once;
// later occurrences, such as the owning side of a bidirectional association,
// become {"$ref": id}.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"rowgraph/internal/collection"
	"rowgraph/internal/hydration"
	"rowgraph/internal/metadata"
	"rowgraph/internal/nodeid"
)

const (
	idKey    = "$id"
	classKey = "$class"
	refKey   = "$ref"
)

// Renderer renders one result. It remembers which entities it has written,
// so a fresh Renderer is needed per result.
type Renderer struct {
	registry metadata.Registry
	seen     map[any]string
}

// New creates a Renderer resolving entity classes through registry.
func New(registry metadata.Registry) *Renderer {
	return &Renderer{registry: registry, seen: make(map[any]string)}
}

// Result renders a hydration result. List results become arrays, indexed
// results objects keyed by the index value, and mixed results arrays of
// objects holding the entity under "entity" next to the scalar values.
func (r *Renderer) Result(result *hydration.Result) (any, error) {
	switch result.Kind() {
	case hydration.IndexedResult:
		out := make(map[string]any, result.Len())
		for _, key := range result.Keys() {
			entity, _ := result.Get(key)
			node, err := r.Entity(entity)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(key)] = node
		}
		return out, nil
	case hydration.MixedResult:
		out := make([]any, 0, result.Len())
		for _, row := range result.Rows() {
			node := make(map[string]any, len(row.Scalars)+2)
			for _, name := range row.ScalarNames() {
				node[name] = row.Scalars[name]
			}
			if row.Entity != nil {
				entity, err := r.Entity(row.Entity)
				if err != nil {
					return nil, err
				}
				node["entity"] = entity
			}
			if row.Key != nil {
				node["key"] = row.Key
			}
			out = append(out, node)
		}
		return out, nil
	default:
		out := make([]any, 0, result.Len())
		for _, entity := range result.Entities() {
			node, err := r.Entity(entity)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
		}
		return out, nil
	}
}

// Entity renders one entity and everything reachable from it.
func (r *Renderer) Entity(entity any) (any, error) {
	if entity == nil {
		return nil, nil
	}
	if ref, ok := entity.(*hydration.Reference); ok {
		return map[string]any{classKey: ref.Class, "$proxy": ref.Identifier}, nil
	}
	if id, ok := r.seen[entity]; ok {
		return map[string]any{refKey: id}, nil
	}

	named, ok := entity.(metadata.Named)
	if !ok {
		return nil, fmt.Errorf("cannot render %T: entity does not report its class", entity)
	}
	class, err := r.registry.ClassMetadata(named.ClassName())
	if err != nil {
		return nil, err
	}

	id := nodeid.Encode(class.Name, class.IdentifierValues(entity)...)
	r.seen[entity] = id

	node := map[string]any{idKey: id, classKey: class.Name}
	for _, field := range class.FieldNames() {
		node[field] = class.Accessor(field).Get(entity)
	}
	for _, field := range class.AssociationNames() {
		assoc := class.Associations[field]
		value, err := r.association(assoc, class.Accessor(field).Get(entity))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", class.Name, field, err)
		}
		node[field] = value
	}
	return node, nil
}

func (r *Renderer) association(assoc *metadata.Association, value any) (any, error) {
	coll, ok := value.(*collection.Collection)
	if !ok {
		return r.Entity(value)
	}
	if !coll.IsInitialized() {
		return map[string]any{"$uninitialized": true}, nil
	}

	elements, keys := coll.Elements(), coll.Keys()
	if assoc.IndexBy != "" {
		out := make(map[string]any, len(elements))
		for i, element := range elements {
			node, err := r.Entity(element)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(keys[i])] = node
		}
		return out, nil
	}
	out := make([]any, 0, len(elements))
	for _, element := range elements {
		node, err := r.Entity(element)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use json or yaml)", name)
	}
}

// Write encodes a rendered tree to w.
func Write(w io.Writer, tree any, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return fmt.Errorf("failed to encode yaml output: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tree); err != nil {
			return fmt.Errorf("failed to encode json output: %w", err)
		}
		return nil
	}
}
