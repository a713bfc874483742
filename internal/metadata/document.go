package metadata

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a set of class mappings.
//
//	classes:
//	  Customer:
//	    table: customers
//	    id: [id]
//	    fields:
//	      id: {column: id, type: integer}
//	    associations:
//	      carts: {kind: one_to_many, target: Cart, mappedBy: customer}
type Document struct {
	Classes map[string]ClassDocument `yaml:"classes"`
}

// ClassDocument maps one class.
type ClassDocument struct {
	Table              string                         `yaml:"table"`
	Extends            string                         `yaml:"extends"`
	ID                 []string                       `yaml:"id"`
	Fields             map[string]FieldDocument       `yaml:"fields"`
	Associations       map[string]AssociationDocument `yaml:"associations"`
	Discriminator      *DiscriminatorDocument         `yaml:"discriminator"`
	DiscriminatorValue string                         `yaml:"discriminatorValue"`
}

// FieldDocument maps one scalar field.
type FieldDocument struct {
	Column string `yaml:"column"`
	Type   string `yaml:"type"`
}

// AssociationDocument maps one association.
type AssociationDocument struct {
	Kind        string               `yaml:"kind"`
	Target      string               `yaml:"target"`
	MappedBy    string               `yaml:"mappedBy"`
	InversedBy  string               `yaml:"inversedBy"`
	Fetch       string               `yaml:"fetch"`
	IndexBy     string               `yaml:"indexBy"`
	JoinColumns []JoinColumnDocument `yaml:"joinColumns"`
	JoinTable   *JoinTableDocument   `yaml:"joinTable"`
}

// JoinColumnDocument maps a join column.
type JoinColumnDocument struct {
	Name                 string `yaml:"name"`
	ReferencedColumnName string `yaml:"referencedColumnName"`
}

// JoinTableDocument maps a many-to-many link table.
type JoinTableDocument struct {
	Name               string               `yaml:"name"`
	JoinColumns        []JoinColumnDocument `yaml:"joinColumns"`
	InverseJoinColumns []JoinColumnDocument `yaml:"inverseJoinColumns"`
}

// DiscriminatorDocument declares single-table inheritance on a root class.
type DiscriminatorDocument struct {
	Column string            `yaml:"column"`
	Map    map[string]string `yaml:"map"`
}

// LoadFile reads a mapping document from path into the registry.
func (r *MemoryRegistry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()
	if err := r.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load decodes a YAML mapping document and registers its classes.
func (r *MemoryRegistry) Load(reader io.Reader) error {
	var doc Document
	if err := yaml.NewDecoder(reader).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode mapping document: %w", err)
	}
	classes, err := doc.Build()
	if err != nil {
		return err
	}
	return r.Register(classes...)
}

// Build converts the document into class metadata ordered so that parents
// precede their subclasses.
func (d Document) Build() ([]*ClassMetadata, error) {
	names := make([]string, 0, len(d.Classes))
	for name := range d.Classes {
		names = append(names, name)
	}
	sort.Strings(names)

	built := make(map[string]*ClassMetadata, len(names))
	for _, name := range names {
		class, err := buildClass(name, d.Classes[name])
		if err != nil {
			return nil, err
		}
		built[name] = class
	}

	ordered := make([]*ClassMetadata, 0, len(names))
	visited := make(map[string]bool, len(names))
	var visit func(name string, depth int) error
	visit = func(name string, depth int) error {
		if visited[name] {
			return nil
		}
		if depth > len(names) {
			return fmt.Errorf("metadata: inheritance cycle at class %q", name)
		}
		class := built[name]
		if class.ParentClass != "" {
			if _, ok := built[class.ParentClass]; !ok {
				return fmt.Errorf("metadata: class %q extends unknown class %q", name, class.ParentClass)
			}
			if err := visit(class.ParentClass, depth+1); err != nil {
				return err
			}
		}
		visited[name] = true
		ordered = append(ordered, class)
		return nil
	}
	for _, name := range names {
		if err := visit(name, 0); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func buildClass(name string, doc ClassDocument) (*ClassMetadata, error) {
	class := NewClassMetadata(name, doc.Table)
	class.ParentClass = doc.Extends
	class.IdentifierFields = append([]string(nil), doc.ID...)
	class.DiscriminatorValue = doc.DiscriminatorValue
	if doc.Discriminator != nil {
		if doc.Discriminator.Column == "" {
			return nil, fmt.Errorf("metadata: class %q declares a discriminator without a column", name)
		}
		class.DiscriminatorColumn = doc.Discriminator.Column
		class.DiscriminatorMap = doc.Discriminator.Map
	}

	for field, fd := range doc.Fields {
		class.AddField(field, fd.Column, fd.Type)
	}
	for _, id := range class.IdentifierFields {
		if _, ok := doc.Fields[id]; !ok && doc.Extends == "" {
			return nil, fmt.Errorf("metadata: class %q identifier %q is not a mapped field", name, id)
		}
	}

	for field, ad := range doc.Associations {
		assoc, err := buildAssociation(name, field, ad)
		if err != nil {
			return nil, err
		}
		class.AddAssociation(assoc)
	}
	return class, nil
}

func buildAssociation(class, field string, doc AssociationDocument) (*Association, error) {
	kind, err := ParseAssociationKind(doc.Kind)
	if err != nil {
		return nil, fmt.Errorf("metadata: %s.%s: %w", class, field, err)
	}
	fetch, err := ParseFetchMode(doc.Fetch)
	if err != nil {
		return nil, fmt.Errorf("metadata: %s.%s: %w", class, field, err)
	}
	if doc.Target == "" {
		return nil, fmt.Errorf("metadata: %s.%s: target is required", class, field)
	}

	assoc := &Association{
		FieldName:    field,
		SourceEntity: class,
		TargetEntity: doc.Target,
		Kind:         kind,
		MappedBy:     doc.MappedBy,
		InversedBy:   doc.InversedBy,
		Fetch:        fetch,
		IndexBy:      doc.IndexBy,
		JoinColumns:  joinColumns(doc.JoinColumns),
	}
	switch kind {
	case ManyToOne:
		assoc.IsOwningSide = true
	case OneToMany:
		if doc.MappedBy == "" {
			return nil, fmt.Errorf("metadata: %s.%s: one_to_many requires mappedBy", class, field)
		}
	default:
		assoc.IsOwningSide = doc.MappedBy == ""
	}
	if assoc.IsOwningSide && kind.IsToOne() && len(assoc.JoinColumns) == 0 {
		return nil, fmt.Errorf("metadata: %s.%s: owning %s requires joinColumns", class, field, kind)
	}
	if doc.JoinTable != nil {
		assoc.JoinTable = &JoinTable{
			Name:               doc.JoinTable.Name,
			JoinColumns:        joinColumns(doc.JoinTable.JoinColumns),
			InverseJoinColumns: joinColumns(doc.JoinTable.InverseJoinColumns),
		}
	}
	return assoc, nil
}

func joinColumns(docs []JoinColumnDocument) []JoinColumn {
	if len(docs) == 0 {
		return nil
	}
	out := make([]JoinColumn, len(docs))
	for i, jc := range docs {
		ref := jc.ReferencedColumnName
		if ref == "" {
			ref = "id"
		}
		out[i] = JoinColumn{Name: jc.Name, ReferencedColumnName: ref}
	}
	return out
}
