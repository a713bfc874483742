package hydration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowgraph/internal/collection"
	"rowgraph/internal/mapping"
	"rowgraph/internal/metadata"
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
      payment: {}
    associations:
      customer: {kind: many_to_one, target: Customer, inversedBy: carts, joinColumns: [{name: customer_id}]}
      items: {kind: one_to_many, target: Item, mappedBy: cart}
  Item:
    table: items
    id: [id]
    fields:
      id: {type: integer}
      name: {}
    associations:
      cart: {kind: many_to_one, target: Cart, inversedBy: items, joinColumns: [{name: cart_id}]}
  Address:
    table: addresses
    id: [id]
    fields:
      id: {type: integer}
      city: {}
  User:
    table: users
    id: [id]
    fields:
      id: {type: integer}
    associations:
      groups:
        kind: many_to_many
        target: Group
        inversedBy: users
        joinTable:
          name: user_groups
          joinColumns: [{name: user_id}]
          inverseJoinColumns: [{name: group_id}]
  Group:
    table: groups
    id: [id]
    fields:
      id: {type: integer}
    associations:
      users: {kind: many_to_many, target: User, mappedBy: groups}
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

const libraryClasses = `
classes:
  Author:
    table: authors
    id: [id]
    fields:
      id: {type: integer}
    associations:
      books: {kind: one_to_many, target: Book, mappedBy: author, fetch: eager}
  Book:
    table: books
    id: [id]
    fields:
      id: {type: integer}
    associations:
      author: {kind: many_to_one, target: Author, inversedBy: books, fetch: eager, joinColumns: [{name: author_id}]}
`

func newRegistry(t *testing.T, doc string) *metadata.MemoryRegistry {
	t.Helper()
	reg := metadata.NewMemoryRegistry()
	require.NoError(t, reg.Load(strings.NewReader(doc)))
	return reg
}

func newShopHydrator(t *testing.T, opts ...Option) (*Hydrator, *IdentityMap) {
	t.Helper()
	uow := NewIdentityMap()
	return New(newRegistry(t, shopClasses), uow, opts...), uow
}

func ent(t *testing.T, v any) *metadata.Entity {
	t.Helper()
	e, ok := v.(*metadata.Entity)
	require.True(t, ok, "expected *metadata.Entity, got %T", v)
	return e
}

func coll(t *testing.T, v any) *collection.Collection {
	t.Helper()
	c, ok := v.(*collection.Collection)
	require.True(t, ok, "expected *collection.Collection, got %T", v)
	return c
}

func ids(t *testing.T, c *collection.Collection) []any {
	t.Helper()
	var out []any
	for _, el := range c.Elements() {
		out = append(out, ent(t, el).Get("id"))
	}
	return out
}

func customerCartsMapping() *mapping.ResultSetMapping {
	return mapping.New().
		AddEntityResult("Customer", "c").
		AddFieldResult("c", "cust_id", "id").
		AddFieldResult("c", "cust_name", "name").
		AddJoinedEntityResult("Cart", "ct", "c", "carts").
		AddFieldResult("ct", "cart_id", "id").
		AddFieldResult("ct", "cart_payment", "payment")
}

func customerCartRows() []Row {
	return []Row{
		NewRow("cust_id", 1, "cust_name", "A", "cart_id", 10, "cart_payment", "visa"),
		NewRow("cust_id", 1, "cust_name", "A", "cart_id", 11, "cart_payment", "mc"),
	}
}

func TestHydrateCustomerCarts(t *testing.T) {
	h, uow := newShopHydrator(t)

	result, err := h.HydrateAll(context.Background(), NewSliceCursor(customerCartRows()...), customerCartsMapping(), Hints{})
	require.NoError(t, err)
	require.Equal(t, ListResult, result.Kind())
	require.Equal(t, 1, result.Len())

	customer := ent(t, result.Entities()[0])
	assert.Equal(t, int64(1), customer.Get("id"))
	assert.Equal(t, "A", customer.Get("name"))

	carts := coll(t, customer.Get("carts"))
	assert.Equal(t, []any{int64(10), int64(11)}, ids(t, carts))
	assert.True(t, carts.IsInitialized())
	assert.False(t, carts.IsDirty())
	assert.True(t, carts.HasSnapshot())
	assert.Len(t, carts.Snapshot(), 2)

	for _, el := range carts.Elements() {
		cart := ent(t, el)
		assert.Same(t, customer, cart.Get("customer"), "inverse side is linked")
		items := coll(t, cart.Get("items"))
		assert.False(t, items.IsInitialized(), "non-fetched collection stays lazy")
	}
	assert.True(t, customer.Has("address"))
	assert.Nil(t, customer.Get("address"))
	assert.Equal(t, 3, uow.Len())
	assert.Same(t, carts, uow.OriginalEntityData(customer)["carts"])
}

func TestHydrateIdentityAcrossRuns(t *testing.T) {
	h, _ := newShopHydrator(t)
	ctx := context.Background()

	first, err := h.HydrateAll(ctx, NewSliceCursor(customerCartRows()...), customerCartsMapping(), Hints{})
	require.NoError(t, err)
	second, err := h.HydrateAll(ctx, NewSliceCursor(customerCartRows()...), customerCartsMapping(), Hints{})
	require.NoError(t, err)

	assert.Same(t, first.Entities()[0], second.Entities()[0])
	carts := coll(t, ent(t, second.Entities()[0]).Get("carts"))
	assert.Equal(t, []any{int64(10), int64(11)}, ids(t, carts), "rehydration does not duplicate elements")
}

func TestHydrateNestedCollections(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := customerCartsMapping().
		AddJoinedEntityResult("Item", "i", "ct", "items").
		AddFieldResult("i", "item_id", "id").
		AddFieldResult("i", "item_name", "name")

	rows := []Row{
		NewRow("cust_id", 1, "cust_name", "A", "cart_id", 10, "cart_payment", "visa", "item_id", 100, "item_name", "pen"),
		NewRow("cust_id", 1, "cust_name", "A", "cart_id", 10, "cart_payment", "visa", "item_id", 101, "item_name", "ink"),
		NewRow("cust_id", 1, "cust_name", "A", "cart_id", 11, "cart_payment", "mc", "item_id", nil, "item_name", nil),
		NewRow("cust_id", 2, "cust_name", "B", "cart_id", nil, "cart_payment", nil, "item_id", nil, "item_name", nil),
	}
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Len())

	carts := coll(t, ent(t, result.Entities()[0]).Get("carts"))
	require.Equal(t, []any{int64(10), int64(11)}, ids(t, carts))
	first := coll(t, ent(t, carts.Elements()[0]).Get("items"))
	assert.Equal(t, []any{int64(100), int64(101)}, ids(t, first))
	empty := coll(t, ent(t, carts.Elements()[1]).Get("items"))
	assert.True(t, empty.IsInitialized())
	assert.Zero(t, empty.Len())

	noCarts := coll(t, ent(t, result.Entities()[1]).Get("carts"))
	assert.True(t, noCarts.IsInitialized())
	assert.Zero(t, noCarts.Len())
}

func TestHydrateSharedChildUnderTwoParents(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := mapping.New().
		AddEntityResult("User", "u").
		AddFieldResult("u", "user_id", "id").
		AddJoinedEntityResult("Group", "g", "u", "groups").
		AddFieldResult("g", "group_id", "id")

	rows := []Row{
		NewRow("user_id", 1, "group_id", 7),
		NewRow("user_id", 2, "group_id", 7),
		NewRow("user_id", 2, "group_id", 8),
	}
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Len())

	u1 := ent(t, result.Entities()[0])
	u2 := ent(t, result.Entities()[1])
	assert.Equal(t, []any{int64(7)}, ids(t, coll(t, u1.Get("groups"))))
	assert.Equal(t, []any{int64(7), int64(8)}, ids(t, coll(t, u2.Get("groups"))))

	g7 := coll(t, u2.Get("groups")).Elements()[0]
	users := coll(t, ent(t, g7).Get("users"))
	assert.Equal(t, []any{u1, u2}, users.Elements(), "inverse side mirrors both owners")
	assert.True(t, users.IsInitialized())
}

func TestHydrateIndexedResult(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := customerCartsMapping().AddIndexBy("c", "name").AddIndexBy("ct", "payment")

	rows := append(customerCartRows(), NewRow("cust_id", 2, "cust_name", "B", "cart_id", nil, "cart_payment", nil))
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)
	require.Equal(t, IndexedResult, result.Kind())
	assert.Equal(t, []any{"A", "B"}, result.Keys())

	a, ok := result.Get("A")
	require.True(t, ok)
	carts := coll(t, ent(t, a).Get("carts"))
	assert.Equal(t, []any{"visa", "mc"}, carts.Keys())
	visa, ok := carts.Get("visa")
	require.True(t, ok)
	assert.Equal(t, int64(10), ent(t, visa).Get("id"))
}

func TestHydrateMixedResult(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := mapping.New().
		AddEntityResult("Customer", "c").
		AddFieldResult("c", "cust_id", "id").
		AddScalarResult("cart_count", "carts")

	rows := []Row{
		NewRow("cust_id", 1, "cart_count", 2),
		NewRow("cust_id", 2, "cart_count", 0),
		NewRow("cust_id", nil, "cart_count", 5),
	}
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)
	require.Equal(t, MixedResult, result.Kind())

	out := result.Rows()
	require.Len(t, out, 3)
	assert.Equal(t, int64(1), ent(t, out[0].Entity).Get("id"))
	assert.Equal(t, 2, out[0].Scalars["carts"])
	assert.Equal(t, 0, out[1].Scalars["carts"])
	assert.Nil(t, out[2].Entity)
	assert.Equal(t, 5, out[2].Scalars["carts"])
	assert.Equal(t, []string{"carts"}, out[0].ScalarNames())
}

func TestHydrateMixedScalarsFollowTheirRoot(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := mapping.New().
		AddEntityResult("Customer", "c").
		AddFieldResult("c", "cust_id", "id").
		AddScalarResult("label", "label")

	rows := []Row{
		NewRow("cust_id", 1, "label", "a"),
		NewRow("cust_id", 2, "label", "b"),
		NewRow("cust_id", 1, "label", "c"),
	}
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)

	out := result.Rows()
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), ent(t, out[0].Entity).Get("id"))
	assert.Equal(t, "c", out[0].Scalars["label"], "a repeated root takes the scalars of its row")
	assert.Equal(t, int64(2), ent(t, out[1].Entity).Get("id"))
	assert.Equal(t, "b", out[1].Scalars["label"])
}

func TestHydrateScalarOnly(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := mapping.New().AddScalarResult("n", "total").AddScalarResult("label", "label")

	rows := []Row{
		NewRow("n", 3, "label", []byte("x")),
		NewRow("n", 4, "label", "y"),
	}
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)
	require.Equal(t, MixedResult, result.Kind())

	out := result.Rows()
	require.Len(t, out, 2)
	assert.Equal(t, map[string]any{"total": 3, "label": "x"}, out[0].Scalars)
	assert.Equal(t, map[string]any{"total": 4, "label": "y"}, out[1].Scalars)
}

func TestHydrateDiscriminator(t *testing.T) {
	rsm := func() *mapping.ResultSetMapping {
		return mapping.New().
			AddEntityResult("Person", "p").
			AddFieldResult("p", "p_id", "id").
			AddFieldResult("p", "p_name", "name").
			AddFieldResult("p", "p_salary", "salary").
			SetDiscriminatorColumn("p", "p_kind")
	}

	t.Run("subclass", func(t *testing.T) {
		h, _ := newShopHydrator(t)
		rows := []Row{
			NewRow("p_id", 1, "p_name", "Ann", "p_salary", "100", "p_kind", "employee"),
			NewRow("p_id", 2, "p_name", "Bob", "p_salary", nil, "p_kind", "person"),
		}
		result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm(), Hints{})
		require.NoError(t, err)

		ann := ent(t, result.Entities()[0])
		assert.Equal(t, "Employee", ann.ClassName())
		assert.Equal(t, int64(100), ann.Get("salary"))
		assert.False(t, ann.Has("kind"), "discriminator is not an entity field")

		bob := ent(t, result.Entities()[1])
		assert.Equal(t, "Person", bob.ClassName())
		assert.False(t, bob.Has("salary"))
	})

	t.Run("unknown value", func(t *testing.T) {
		h, _ := newShopHydrator(t)
		rows := []Row{NewRow("p_id", 3, "p_name", "R2", "p_salary", nil, "p_kind", "robot")}
		result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm(), Hints{})
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, IsUnknownDiscriminator(err))

		var dErr *UnknownDiscriminatorError
		require.True(t, errors.As(err, &dErr))
		assert.Equal(t, "robot", dErr.Value)
		assert.Equal(t, "Person", dErr.Class)
	})
}

func TestHydrateMissingParent(t *testing.T) {
	h, _ := newShopHydrator(t)
	rows := []Row{NewRow("cust_id", nil, "cust_name", nil, "cart_id", 10, "cart_payment", "visa")}

	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), customerCartsMapping(), Hints{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsMappingIntegrity(err))

	var mErr *MappingIntegrityError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "ct", mErr.Alias)
	assert.Equal(t, "c", mErr.ParentAlias)
	assert.Equal(t, 1, mErr.Row)
}

func TestHydrateInvalidMapping(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := mapping.New().
		AddEntityResult("Customer", "c").
		AddJoinedEntityResult("Cart", "ct", "c", "wheels")

	_, err := h.HydrateAll(context.Background(), NewSliceCursor(), rsm, Hints{})
	require.Error(t, err)
	assert.True(t, IsMappingIntegrity(err))
}

func TestHydrateSingleValuedFirstRowWins(t *testing.T) {
	h, _ := newShopHydrator(t)
	rsm := mapping.New().
		AddEntityResult("Cart", "ct").
		AddFieldResult("ct", "cart_id", "id").
		AddJoinedEntityResult("Customer", "c", "ct", "customer").
		AddFieldResult("c", "cust_id", "id")

	rows := []Row{
		NewRow("cart_id", 10, "cust_id", nil),
		NewRow("cart_id", 10, "cust_id", 1),
		NewRow("cart_id", 10, "cust_id", 2),
	}
	result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
	require.NoError(t, err)

	cart := ent(t, result.Entities()[0])
	assert.Equal(t, int64(1), ent(t, cart.Get("customer")).Get("id"))
}

func TestHydrateReferencesAndPartialObjects(t *testing.T) {
	rsm := mapping.New().
		AddEntityResult("Cart", "ct").
		AddFieldResult("ct", "cart_id", "id").
		AddMetaResult("ct", "customer_id", "customer_id")
	rows := []Row{NewRow("cart_id", 10, "customer_id", 1)}

	t.Run("reference", func(t *testing.T) {
		h, _ := newShopHydrator(t)
		result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{})
		require.NoError(t, err)

		cart := ent(t, result.Entities()[0])
		assert.Equal(t, &Reference{Class: "Customer", Identifier: map[string]any{"id": 1}}, cart.Get("customer"))
		assert.False(t, coll(t, cart.Get("items")).IsInitialized())
	})

	t.Run("partial", func(t *testing.T) {
		h, _ := newShopHydrator(t)
		result, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), rsm, Hints{PartialObjects: true})
		require.NoError(t, err)

		cart := ent(t, result.Entities()[0])
		assert.False(t, cart.Has("customer"))
		assert.False(t, cart.Has("items"))
	})
}

type fakeLoader struct {
	ones        []map[string]any
	collections []string
	err         error
}

func (l *fakeLoader) LoadOne(_ context.Context, _ any, assoc *metadata.Association, joinValues map[string]any) (any, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.ones = append(l.ones, joinValues)
	target := metadata.NewEntity(assoc.TargetEntity)
	target.Set("id", joinValues["author_id"])
	return target, nil
}

func (l *fakeLoader) LoadCollection(_ context.Context, _ any, assoc *metadata.Association, c *collection.Collection) error {
	if l.err != nil {
		return l.err
	}
	l.collections = append(l.collections, assoc.FieldName)
	c.HydrateAdd(metadata.NewEntity(assoc.TargetEntity))
	c.SetInitialized(true)
	c.TakeSnapshot()
	return nil
}

func TestHydrateEagerLoads(t *testing.T) {
	bookMapping := mapping.New().
		AddEntityResult("Book", "b").
		AddFieldResult("b", "book_id", "id").
		AddMetaResult("b", "author_id", "author_id")

	t.Run("inline", func(t *testing.T) {
		loader := &fakeLoader{}
		h := New(newRegistry(t, libraryClasses), NewIdentityMap(), WithEagerLoader(loader))

		result, err := h.HydrateAll(context.Background(), NewSliceCursor(NewRow("book_id", 1, "author_id", 5)), bookMapping, Hints{})
		require.NoError(t, err)

		book := ent(t, result.Entities()[0])
		assert.Equal(t, 5, ent(t, book.Get("author")).Get("id"))
		assert.Equal(t, []map[string]any{{"author_id": 5}}, loader.ones)
	})

	t.Run("collection", func(t *testing.T) {
		loader := &fakeLoader{}
		h := New(newRegistry(t, libraryClasses), NewIdentityMap(), WithEagerLoader(loader))
		rsm := mapping.New().AddEntityResult("Author", "a").AddFieldResult("a", "author_id", "id")

		result, err := h.HydrateAll(context.Background(), NewSliceCursor(NewRow("author_id", 5)), rsm, Hints{})
		require.NoError(t, err)

		books := coll(t, ent(t, result.Entities()[0]).Get("books"))
		assert.True(t, books.IsInitialized())
		assert.Equal(t, 1, books.Len())
		assert.Equal(t, []string{"books"}, loader.collections)
	})

	t.Run("deferred", func(t *testing.T) {
		loader := &fakeLoader{}
		h := New(newRegistry(t, libraryClasses), NewIdentityMap(), WithEagerLoader(loader))
		ctx := context.Background()

		run, err := h.NewRun(ctx, bookMapping, Hints{DeferEagerLoads: true})
		require.NoError(t, err)
		require.NoError(t, run.HydrateRow(ctx, NewRow("book_id", 1, "author_id", 5)))
		assert.Empty(t, loader.ones)

		result, err := run.Finish(ctx)
		require.NoError(t, err)
		assert.Len(t, loader.ones, 1)
		assert.NotNil(t, ent(t, result.Entities()[0]).Get("author"))

		assert.ErrorIs(t, run.HydrateRow(ctx, NewRow("book_id", 2)), ErrRunFinished)
	})

	t.Run("failure", func(t *testing.T) {
		loader := &fakeLoader{err: errors.New("connection reset")}
		h := New(newRegistry(t, libraryClasses), NewIdentityMap(), WithEagerLoader(loader))

		_, err := h.HydrateAll(context.Background(), NewSliceCursor(NewRow("book_id", 1, "author_id", 5)), bookMapping, Hints{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "eager load of Book.author")
		assert.ErrorIs(t, err, loader.err)
	})

	t.Run("without loader", func(t *testing.T) {
		h := New(newRegistry(t, libraryClasses), NewIdentityMap())
		result, err := h.HydrateAll(context.Background(), NewSliceCursor(NewRow("book_id", 1, "author_id", 5)), bookMapping, Hints{})
		require.NoError(t, err)
		assert.IsType(t, &Reference{}, ent(t, result.Entities()[0]).Get("author"))
	})
}

func TestHydrateCancelledContext(t *testing.T) {
	h, _ := newShopHydrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.HydrateAll(ctx, NewSliceCursor(customerCartRows()...), customerCartsMapping(), Hints{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Zero(t, result.Len())
}

func TestHydrateConversionError(t *testing.T) {
	h, _ := newShopHydrator(t)
	rows := []Row{NewRow("cust_id", "one", "cust_name", "A", "cart_id", nil, "cart_payment", nil)}

	_, err := h.HydrateAll(context.Background(), NewSliceCursor(rows...), customerCartsMapping(), Hints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "cust_id"`)
}

const memberClasses = `
classes:
  User:
    table: users
    id: [id]
    fields:
      id: {type: integer}
    associations:
      profile: {kind: one_to_one, target: Profile, inversedBy: user, joinColumns: [{name: profile_id}]}
      mentor: {kind: one_to_one, target: User, inversedBy: mentee, joinColumns: [{name: mentor_id}]}
      mentee: {kind: one_to_one, target: User, mappedBy: mentor}
  Profile:
    table: profiles
    id: [id]
    fields:
      id: {type: integer}
      bio: {}
    associations:
      user: {kind: one_to_one, target: User, mappedBy: profile}
`

func TestHydrateOneToOneBackReference(t *testing.T) {
	ctx := context.Background()

	t.Run("owning side", func(t *testing.T) {
		h := New(newRegistry(t, memberClasses), NewIdentityMap())
		rsm := mapping.New().
			AddEntityResult("User", "u").
			AddFieldResult("u", "u_id", "id").
			AddJoinedEntityResult("Profile", "p", "u", "profile").
			AddFieldResult("p", "p_id", "id")

		result, err := h.HydrateAll(ctx, NewSliceCursor(NewRow("u_id", 1, "p_id", 7)), rsm, Hints{})
		require.NoError(t, err)

		user := ent(t, result.Entities()[0])
		profile := ent(t, user.Get("profile"))
		assert.Equal(t, int64(7), profile.Get("id"))
		assert.Same(t, user, profile.Get("user"))
	})

	t.Run("inverse side", func(t *testing.T) {
		h := New(newRegistry(t, memberClasses), NewIdentityMap())
		rsm := mapping.New().
			AddEntityResult("Profile", "p").
			AddFieldResult("p", "p_id", "id").
			AddJoinedEntityResult("User", "u", "p", "user").
			AddFieldResult("u", "u_id", "id")

		result, err := h.HydrateAll(ctx, NewSliceCursor(NewRow("p_id", 7, "u_id", 1)), rsm, Hints{})
		require.NoError(t, err)

		profile := ent(t, result.Entities()[0])
		user := ent(t, profile.Get("user"))
		assert.Equal(t, int64(1), user.Get("id"))
		assert.Same(t, profile, user.Get("profile"))
	})

	t.Run("self referencing", func(t *testing.T) {
		h := New(newRegistry(t, memberClasses), NewIdentityMap())
		rsm := mapping.New().
			AddEntityResult("User", "u").
			AddFieldResult("u", "u_id", "id").
			AddJoinedEntityResult("User", "m", "u", "mentor").
			AddFieldResult("m", "m_id", "id")

		result, err := h.HydrateAll(ctx, NewSliceCursor(NewRow("u_id", 1, "m_id", 2)), rsm, Hints{})
		require.NoError(t, err)
		require.Equal(t, 1, result.Len())

		user := ent(t, result.Entities()[0])
		mentor := ent(t, user.Get("mentor"))
		assert.Equal(t, int64(2), mentor.Get("id"))
		assert.Same(t, user, mentor.Get("mentee"))
		assert.Nil(t, mentor.Get("mentor"))
	})

	t.Run("refresh overwrites a managed single-valued field", func(t *testing.T) {
		h := New(newRegistry(t, memberClasses), NewIdentityMap())
		rsm := mapping.New().
			AddEntityResult("User", "u").
			AddFieldResult("u", "u_id", "id").
			AddJoinedEntityResult("Profile", "p", "u", "profile").
			AddFieldResult("p", "p_id", "id")

		first, err := h.HydrateAll(ctx, NewSliceCursor(NewRow("u_id", 1, "p_id", 7)), rsm, Hints{})
		require.NoError(t, err)
		user := ent(t, first.Entities()[0])

		_, err = h.HydrateAll(ctx, NewSliceCursor(NewRow("u_id", 1, "p_id", 8)), rsm, Hints{})
		require.NoError(t, err)
		assert.Equal(t, int64(7), ent(t, user.Get("profile")).Get("id"), "managed value kept without refresh")

		refreshed, err := h.HydrateAll(ctx, NewSliceCursor(NewRow("u_id", 1, "p_id", 8)), rsm, Hints{Refresh: true})
		require.NoError(t, err)
		assert.Same(t, user, refreshed.Entities()[0])

		profile := ent(t, user.Get("profile"))
		assert.Equal(t, int64(8), profile.Get("id"))
		assert.Same(t, user, profile.Get("user"))
	})
}
