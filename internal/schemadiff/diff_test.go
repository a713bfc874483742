package schemadiff

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func shopSnapshot() Snapshot {
	return Snapshot{
		Name: "shop",
		Tables: []Table{
			{
				Name:  "customers",
				Class: "Customer",
				Columns: []Column{
					{Name: "id", Type: "int", NotNull: true, AutoIncrement: true},
					{Name: "name", Type: "varchar(255)", NotNull: true},
					{Name: "email", Type: "varchar(190)"},
				},
				PrimaryKey: []string{"id"},
				Indexes: []Index{
					{Name: "customers_email_uniq", Columns: []string{"email"}, Unique: true},
				},
			},
			{
				Name:  "carts",
				Class: "Cart",
				Columns: []Column{
					{Name: "id", Type: "int", NotNull: true},
					{Name: "customer_id", Type: "int"},
					{Name: "total", Type: "decimal(10,2)", Default: strPtr("'0.00'")},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []ForeignKey{
					{Name: "fk_carts_customer", Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"}},
				},
			},
			{
				Name:    "migration_version",
				Columns: []Column{{Name: "version", Type: "varchar(191)"}},
			},
		},
	}
}

func newDiffer() *Differ {
	return New(DefaultOptions(), nil)
}

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	changes, err := newDiffer().Diff(context.Background(), shopSnapshot(), shopSnapshot())
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty(), "unexpected changes: %+v", changes.Counts())
}

func TestDiffDoesNotModifyInputs(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables[1].Columns = to.Tables[1].Columns[:2]

	_, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, shopSnapshot(), from)
	assert.Empty(t, to.Tables[1].Indexes)
}

func TestDiffColumns(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	carts := &to.Tables[1]
	carts.Columns = append(carts.Columns, Column{Name: "note", Type: "text"})
	carts.Columns[2] = Column{Name: "total", Type: "decimal(12,2)", Default: strPtr("'0.00'")}
	customers := &to.Tables[0]
	customers.Columns = customers.Columns[:2]
	customers.Indexes = nil

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)

	assert.Contains(t, changes.AddedColumns["carts"], "note")
	assert.Equal(t, "decimal(12,2)", changes.ChangedColumns["carts"]["total"].Type)
	assert.Contains(t, changes.RemovedColumns["customers"], "email")
	assert.Contains(t, changes.RemovedIndexes["customers"], "customers_email_uniq")
	assert.Equal(t, 4, changes.Count())
}

func TestDiffEquivalentTypesAreUnchanged(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables[0].Columns[0].Type = "INTEGER"
	to.Tables[0].Columns[1] = Column{Name: "name", Type: "character varying", Length: 255, NotNull: true}
	to.Tables[1].Columns[2] = Column{Name: "total", Type: "numeric", Precision: 10, Scale: 2, Default: strPtr("0.00")}

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty(), "unexpected changes: %+v", changes.Counts())
}

func TestDiffCreatedAndDroppedTables(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables = append(to.Tables[:1], Table{
		Name:    "orders",
		Class:   "Order",
		Columns: []Column{{Name: "id", Type: "int"}, {Name: "customer_id", Type: "int"}},
		ForeignKeys: []ForeignKey{
			{Name: "fk_orders_customer", Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"}},
		},
	})

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)

	require.Contains(t, changes.CreatedTables, "orders")
	require.Contains(t, changes.DroppedTables, "carts")
	assert.Contains(t, changes.CreatedFKs["orders"], "fk_orders_customer")
	assert.Contains(t, changes.AddedIndexes["orders"], "orders_customer_id_idx")
	assert.Contains(t, changes.DroppedFKs["carts"], "fk_carts_customer")
	assert.Contains(t, changes.RemovedIndexes["carts"], "carts_customer_id_idx")
	assert.NotContains(t, changes.DroppedTables, "migration_version")
}

func TestDiffChangedForeignKeyIsDroppedAndRecreated(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables[1].ForeignKeys[0].ReferencedColumns = []string{"email"}

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, changes.DroppedFKs["carts"], 1)
	require.Len(t, changes.CreatedFKs["carts"], 1)
	assert.Equal(t, []string{"id"}, changes.DroppedFKs["carts"]["fk_carts_customer"].ReferencedColumns)
	assert.Equal(t, []string{"email"}, changes.CreatedFKs["carts"]["fk_carts_customer"].ReferencedColumns)
	assert.Equal(t, 2, changes.Count())
}

func TestDiffNewForeignKeyOnExistingTable(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	customers := &to.Tables[0]
	customers.Columns = append(customers.Columns, Column{Name: "referrer_id", Type: "int"})
	customers.ForeignKeys = []ForeignKey{
		{Name: "fk_customers_referrer", Columns: []string{"referrer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"}},
	}

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)

	assert.Contains(t, changes.AddedColumns["customers"], "referrer_id")
	assert.Contains(t, changes.CreatedFKs["customers"], "fk_customers_referrer")
	assert.Equal(t, []string{"referrer_id"}, changes.AddedIndexes["customers"]["customers_referrer_id_idx"].Columns)
	assert.Equal(t, 3, changes.Count())
}

func TestDiffChangedIndex(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables[0].Indexes[0].Unique = false

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)

	assert.True(t, changes.RemovedIndexes["customers"]["customers_email_uniq"].Unique)
	assert.False(t, changes.AddedIndexes["customers"]["customers_email_uniq"].Unique)
}

func TestDiffMatchesPrefixedClasses(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	for i := range from.Tables {
		from.Tables[i].Class = DefaultFromPrefix + from.Tables[i].LogicalName()
	}
	for i := range to.Tables {
		to.Tables[i].Class = DefaultToPrefix + to.Tables[i].LogicalName()
	}

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty(), "unexpected changes: %+v", changes.Counts())
}

func TestDiffMatchesByClassNotTableNameCase(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables[0].Name = "Customers"

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty(), "unexpected changes: %+v", changes.Counts())
}

func TestDiffRenamedTableIsDroppedAndCreated(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables[0].Name = "customer"
	to.Tables[0].Columns = append(to.Tables[0].Columns, Column{Name: "phone", Type: "varchar(32)"})

	changes, err := newDiffer().Diff(context.Background(), from, to)
	require.NoError(t, err)
	assert.Contains(t, changes.DroppedTables, "customers")
	assert.Contains(t, changes.CreatedTables, "customer")
	assert.Empty(t, changes.AddedColumns)
	assert.Empty(t, changes.RemovedColumns)
	assert.Len(t, changes.CreatedTables["customer"].Columns, 4)
}

func TestDiffDuplicateClass(t *testing.T) {
	to := shopSnapshot()
	to.Tables[1].Class = "Customer"

	_, err := newDiffer().Diff(context.Background(), shopSnapshot(), to)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateTable))

	var dup *DuplicateTableError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Customer", dup.Class)
}

func TestDiffIgnoredTables(t *testing.T) {
	opts := DefaultOptions()
	opts.IgnoreTables = append(opts.IgnoreTables, "carts")
	to := shopSnapshot()
	to.Tables = to.Tables[:1]

	changes, err := New(opts, nil).Diff(context.Background(), shopSnapshot(), to)
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty())
}

func TestApplyRoundTrip(t *testing.T) {
	from := shopSnapshot()
	to := shopSnapshot()
	to.Tables = append(to.Tables, Table{
		Name:       "loyalty_accounts",
		Class:      "Loyalty",
		Columns:    []Column{{Name: "id", Type: "int", NotNull: true}},
		PrimaryKey: []string{"id"},
	})
	from.Tables = append(from.Tables, Table{
		Name:       "loyalty",
		Class:      "Loyalty",
		Columns:    []Column{{Name: "id", Type: "int", NotNull: true}},
		PrimaryKey: []string{"id"},
	})
	to.Tables[3].Columns = append(to.Tables[3].Columns, Column{Name: "points", Type: "integer"})
	to.Tables[1].ForeignKeys[0].Columns = []string{"id"}
	to.Tables[1].Columns = append(to.Tables[1].Columns, Column{Name: "coupon", Type: "varchar(32)"})
	to.Tables[0].Columns = to.Tables[0].Columns[:2]
	to.Tables[0].Indexes = []Index{{Name: "customers_name_idx", Columns: []string{"name"}}}
	to.Tables = append(to.Tables, Table{
		Name:    "items",
		Class:   "Item",
		Columns: []Column{{Name: "id", Type: "int"}, {Name: "cart_id", Type: "int"}},
		ForeignKeys: []ForeignKey{
			{Name: "fk_items_cart", Columns: []string{"cart_id"}, ReferencedTable: "carts", ReferencedColumns: []string{"id"}, OnDelete: "cascade"},
		},
	})

	d := newDiffer()
	changes, err := d.Diff(context.Background(), from, to)
	require.NoError(t, err)
	require.False(t, changes.IsEmpty())

	applied, err := changes.Apply(from)
	require.NoError(t, err)

	again, err := d.Diff(context.Background(), applied, to)
	require.NoError(t, err)
	assert.True(t, again.IsEmpty(), "unexpected changes after apply: %+v", again.Counts())
}

func TestApplyErrors(t *testing.T) {
	changes := NewChangeSet()
	changes.AddedColumns["missing"] = map[string]Column{"id": {Name: "id", Type: "int"}}
	_, err := changes.Apply(shopSnapshot())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrApply))

	changes = NewChangeSet()
	changes.CreatedTables["customers"] = Table{Name: "customers"}
	_, err = changes.Apply(shopSnapshot())
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "customers", applyErr.Table)
	assert.Equal(t, "table already exists", applyErr.Reason)
}
