package metadata

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopMapping = `
classes:
  Customer:
    table: customers
    id: [id]
    fields:
      id: {column: id, type: integer}
      name: {column: name, type: string}
    associations:
      carts: {kind: one_to_many, target: Cart, mappedBy: customer}
  Cart:
    table: carts
    id: [id]
    fields:
      id: {type: integer}
      payment: {}
    associations:
      customer:
        kind: many_to_one
        target: Customer
        inversedBy: carts
        joinColumns: [{name: customer_id}]
  Person:
    table: people
    id: [id]
    fields:
      id: {type: integer}
      name: {}
    discriminator:
      column: kind
      map: {person: Person, employee: Employee}
  Employee:
    extends: Person
    discriminatorValue: employee
    fields:
      salary: {type: integer}
`

func loadShop(t *testing.T) *MemoryRegistry {
	t.Helper()
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Load(strings.NewReader(shopMapping)))
	return reg
}

func TestLoadDocument(t *testing.T) {
	reg := loadShop(t)
	assert.Equal(t, []string{"Cart", "Customer", "Employee", "Person"}, reg.Names())

	customer, err := reg.ClassMetadata("Customer")
	require.NoError(t, err)
	assert.Equal(t, "customers", customer.Table)
	assert.Equal(t, []string{"id", "name"}, customer.FieldNames())

	carts, ok := customer.Association("carts")
	require.True(t, ok)
	assert.Equal(t, OneToMany, carts.Kind)
	assert.False(t, carts.IsOwningSide)
	assert.Equal(t, "customer", carts.InverseField())

	cart, err := reg.ClassMetadata("Cart")
	require.NoError(t, err)
	owner, ok := cart.Association("customer")
	require.True(t, ok)
	assert.True(t, owner.IsOwningSide)
	assert.Equal(t, []JoinColumn{{Name: "customer_id", ReferencedColumnName: "id"}}, owner.JoinColumns)
	assert.Equal(t, "Cart", owner.SourceEntity)

	field, ok := cart.FieldForColumn("PAYMENT")
	assert.True(t, ok)
	assert.Equal(t, "payment", field)
}

func TestLoadDocumentInheritance(t *testing.T) {
	reg := loadShop(t)

	employee, err := reg.ClassMetadata("Employee")
	require.NoError(t, err)
	assert.Equal(t, "Person", employee.RootEntityName)
	assert.Equal(t, "people", employee.Table)
	assert.Equal(t, []string{"id"}, employee.IdentifierFields)
	assert.Equal(t, []string{"id", "name", "salary"}, employee.FieldNames())
	assert.Equal(t, "kind", employee.DiscriminatorColumn)
	assert.False(t, employee.IsInheritanceRoot())

	person, err := reg.ClassMetadata("Person")
	require.NoError(t, err)
	assert.True(t, person.IsInheritanceRoot())
	concrete, ok := person.ClassForDiscriminator("employee")
	assert.True(t, ok)
	assert.Equal(t, "Employee", concrete)

	root, ok := reg.ClassForTable("people")
	require.True(t, ok)
	assert.Equal(t, "Person", root.Name)
}

func TestLoadDocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "unknown kind",
			doc: `
classes:
  A:
    id: [id]
    fields: {id: {}}
    associations:
      b: {kind: sideways, target: B}
`,
			wantErr: "unknown association kind",
		},
		{
			name: "one to many without mappedBy",
			doc: `
classes:
  A:
    id: [id]
    fields: {id: {}}
    associations:
      bs: {kind: one_to_many, target: B}
`,
			wantErr: "requires mappedBy",
		},
		{
			name: "owning to-one without join columns",
			doc: `
classes:
  A:
    id: [id]
    fields: {id: {}}
    associations:
      b: {kind: many_to_one, target: B}
`,
			wantErr: "requires joinColumns",
		},
		{
			name: "unknown parent",
			doc: `
classes:
  A:
    extends: Missing
`,
			wantErr: "extends unknown class",
		},
		{
			name: "identifier not mapped",
			doc: `
classes:
  A:
    id: [code]
    fields: {id: {}}
`,
			wantErr: "is not a mapped field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMemoryRegistry().Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnknownClass(t *testing.T) {
	_, err := NewMemoryRegistry().ClassMetadata("Ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownClass))
	var target *UnknownClassError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "Ghost", target.Name)
}

func TestAccessors(t *testing.T) {
	class := NewClassMetadata("Point", "points").AddField("x", "", "integer")
	class.IdentifierFields = []string{"x"}

	e := class.NewInstance()
	class.Accessor("x").Set(e, int64(4))
	assert.Equal(t, int64(4), class.Accessor("x").Get(e))
	assert.Equal(t, []any{int64(4)}, class.IdentifierValues(e))
	assert.Equal(t, "Point", e.(Named).ClassName())

	type point struct{ X any }
	class.New = func() any { return &point{} }
	class.SetAccessor("x", AccessorFuncs{
		GetFunc: func(entity any) any { return entity.(*point).X },
		SetFunc: func(entity any, value any) { entity.(*point).X = value },
	})
	typed := class.NewInstance()
	class.Accessor("x").Set(typed, "7")
	assert.Equal(t, "7", typed.(*point).X)
	assert.Nil(t, EntityField("x").Get(typed))
}

func TestConvertValue(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name    string
		typ     string
		value   any
		want    any
		wantErr bool
	}{
		{name: "nil", typ: "integer", value: nil, want: nil},
		{name: "bytes to int", typ: "integer", value: []byte("42"), want: int64(42)},
		{name: "int passthrough", typ: "bigint", value: int64(7), want: int64(7)},
		{name: "bad int", typ: "integer", value: "x", wantErr: true},
		{name: "float", typ: "float", value: "1.5", want: 1.5},
		{name: "bool from int", typ: "boolean", value: int64(1), want: true},
		{name: "bool from string", typ: "bool", value: "false", want: false},
		{name: "string from number", typ: "string", value: int64(3), want: "3"},
		{name: "datetime", typ: "datetime", value: "2024-03-01 10:30:00", want: when},
		{name: "bad datetime", typ: "datetime", value: "yesterday", wantErr: true},
		{name: "untyped bytes", typ: "", value: []byte("raw"), want: "raw"},
		{name: "sql integer declaration", typ: "bigint unsigned", value: []byte("9"), want: int64(9)},
		{name: "sql string declaration", typ: "VARCHAR(255)", value: []byte("ada"), want: "ada"},
		{name: "decimal keeps digits", typ: "decimal(10,2)", value: []byte("10.50"), want: "10.50"},
		{name: "date", typ: "date", value: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "binary keeps bytes", typ: "varbinary(16)", value: []byte{0x01, 0x02}, want: []byte{0x01, 0x02}},
		{name: "uuid from binary", typ: "uuid", value: []byte{
			0x55, 0x0e, 0x84, 0x00, 0xe2, 0x9b, 0x41, 0xd4,
			0xa7, 0x16, 0x44, 0x66, 0x55, 0x44, 0x00, 0x00,
		}, want: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "uuid from text", typ: "uuid", value: "550E8400-E29B-41D4-A716-446655440000", want: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "bad uuid", typ: "uuid", value: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertValue(tt.typ, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
