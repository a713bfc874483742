package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowgraph/internal/hydration"
	"rowgraph/internal/mapping"
	"rowgraph/internal/metadata"
	"rowgraph/internal/nodeid"
)

const shopClasses = `
classes:
  Customer:
    table: customers
    id: [id]
    fields:
      id: {type: integer}
      name: {}
    associations:
      carts: {kind: one_to_many, target: Cart, mappedBy: customer}
      address: {kind: one_to_one, target: Address, joinColumns: [{name: address_id}]}
  Cart:
    table: carts
    id: [id]
    fields:
      id: {type: integer}
    associations:
      customer: {kind: many_to_one, target: Customer, inversedBy: carts, joinColumns: [{name: customer_id}]}
  Address:
    table: addresses
    id: [id]
    fields:
      id: {type: integer}
`

func hydrateShop(t *testing.T, rsm *mapping.ResultSetMapping, rows ...hydration.Row) (*metadata.MemoryRegistry, *hydration.IdentityMap, *hydration.Result) {
	t.Helper()
	registry := metadata.NewMemoryRegistry()
	require.NoError(t, registry.Load(strings.NewReader(shopClasses)))
	uow := hydration.NewIdentityMap()
	result, err := hydration.New(registry, uow).HydrateAll(context.Background(), hydration.NewSliceCursor(rows...), rsm, hydration.Hints{})
	require.NoError(t, err)
	return registry, uow, result
}

func customerCarts() *mapping.ResultSetMapping {
	return mapping.New().
		AddEntityResult("Customer", "c").
		AddFieldResult("c", "c_id", "id").
		AddFieldResult("c", "c_name", "name").
		AddMetaResult("c", "c_address_id", "address_id").
		AddJoinedEntityResult("Cart", "ct", "c", "carts").
		AddFieldResult("ct", "ct_id", "id")
}

func TestRenderBackReferences(t *testing.T) {
	registry, uow, result := hydrateShop(t, customerCarts(),
		hydration.NewRow("c_id", 1, "c_name", "A", "c_address_id", 7, "ct_id", 10),
		hydration.NewRow("c_id", 1, "c_name", "A", "c_address_id", 7, "ct_id", 11),
	)

	tree, err := New(registry).Result(result)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tree, FormatJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)

	customer := decoded[0]
	assert.Equal(t, "Customer", customer["$class"])
	assert.Equal(t, "A", customer["name"])

	address, ok := customer["address"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Address", address["$class"])
	assert.Contains(t, address, "$proxy")

	carts, ok := customer["carts"].([]any)
	require.True(t, ok)
	require.Len(t, carts, 2)
	for i, raw := range carts {
		cart := raw.(map[string]any)
		assert.EqualValues(t, 10+i, cart["id"])
		assert.Equal(t, map[string]any{"$ref": customer["$id"]}, cart["customer"])
	}

	// The rendered id resolves back to the managed instance.
	className, raw, err := nodeid.Decode(customer["$id"].(string))
	require.NoError(t, err)
	class, err := registry.ClassMetadata(className)
	require.NoError(t, err)
	id, err := nodeid.ParseIdentifier(class, raw)
	require.NoError(t, err)
	managed, ok := uow.TryGet(class.RootEntityName, id...)
	require.True(t, ok)
	assert.Same(t, result.Entities()[0], managed)
}

func TestRenderIndexedResult(t *testing.T) {
	rsm := mapping.New().
		AddEntityResult("Customer", "c").
		AddFieldResult("c", "c_id", "id").
		AddFieldResult("c", "c_name", "name").
		AddIndexBy("c", "name")
	registry, _, result := hydrateShop(t, rsm,
		hydration.NewRow("c_id", 1, "c_name", "ann"),
		hydration.NewRow("c_id", 2, "c_name", "bob"),
	)

	tree, err := New(registry).Result(result)
	require.NoError(t, err)
	indexed, ok := tree.(map[string]any)
	require.True(t, ok)
	assert.Len(t, indexed, 2)
	assert.Contains(t, indexed, "ann")
	assert.Contains(t, indexed, "bob")
}

func TestRenderMixedResult(t *testing.T) {
	rsm := mapping.New().
		AddEntityResult("Customer", "c").
		AddFieldResult("c", "c_id", "id").
		AddScalarResult("cart_count", "carts")
	registry, _, result := hydrateShop(t, rsm,
		hydration.NewRow("c_id", 1, "cart_count", 2),
	)

	tree, err := New(registry).Result(result)
	require.NoError(t, err)
	rows := tree.([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, 2, row["carts"])
	assert.Contains(t, row, "entity")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tree, FormatYAML))
	assert.Contains(t, buf.String(), "carts: 2")
}

func TestRenderRejectsUnnamedEntities(t *testing.T) {
	_, err := New(metadata.NewMemoryRegistry()).Entity(struct{ ID int }{1})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	f, err = ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
