package schemanaming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rowgraph/internal/naming"
	"rowgraph/internal/schemadiff"
)

func TestApply_AssignsClasses(t *testing.T) {
	snapshot := &schemadiff.Snapshot{
		Tables: []schemadiff.Table{
			{Name: "customers"},
			{Name: "order_items"},
			{Name: "tbl_cart", Class: "Cart"},
		},
	}

	Apply(snapshot, naming.Default())

	assert.Equal(t, "Customer", snapshot.Tables[0].Class)
	assert.Equal(t, "OrderItem", snapshot.Tables[1].Class)
	assert.Equal(t, "Cart", snapshot.Tables[2].Class)
}

func TestApply_Idempotent(t *testing.T) {
	snapshot := &schemadiff.Snapshot{
		Tables: []schemadiff.Table{{Name: "users"}, {Name: "user"}},
	}
	namer := naming.Default()

	Apply(snapshot, namer)
	Apply(snapshot, namer)

	assert.Equal(t, "User", snapshot.Tables[0].Class)
	assert.Equal(t, "User2", snapshot.Tables[1].Class)
}

func TestApply_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Apply(nil, nil) })
}
