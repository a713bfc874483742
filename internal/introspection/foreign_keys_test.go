package introspection

import "testing"

func TestGroupForeignKeys_GroupsByConstraintName(t *testing.T) {
	got := groupForeignKeys([]foreignKeyColumn{
		{ConstraintName: "fk_user", ColumnName: "user_id", ReferencedTable: "users", ReferencedColumn: "id", OrdinalPosition: 2, DeleteRule: "CASCADE"},
		{ConstraintName: "fk_user", ColumnName: "tenant_id", ReferencedTable: "users", ReferencedColumn: "tenant_id", OrdinalPosition: 1, DeleteRule: "CASCADE"},
		{ConstraintName: "fk_group", ColumnName: "group_tenant_id", ReferencedTable: "groups", ReferencedColumn: "tenant_id", OrdinalPosition: 1},
		{ConstraintName: "fk_group", ColumnName: "group_id", ReferencedTable: "groups", ReferencedColumn: "id", OrdinalPosition: 2},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 FK constraints, got %d", len(got))
	}

	if got[0].Name != "fk_group" {
		t.Fatalf("expected first constraint fk_group, got %s", got[0].Name)
	}
	if got[1].Name != "fk_user" || got[1].OnDelete != "CASCADE" {
		t.Fatalf("unexpected second constraint: %#v", got[1])
	}
	if len(got[1].Columns) != 2 || got[1].Columns[0] != "tenant_id" || got[1].Columns[1] != "user_id" {
		t.Fatalf("unexpected grouped local columns: %#v", got[1].Columns)
	}
	if len(got[1].ReferencedColumns) != 2 || got[1].ReferencedColumns[0] != "tenant_id" || got[1].ReferencedColumns[1] != "id" {
		t.Fatalf("unexpected grouped referenced columns: %#v", got[1].ReferencedColumns)
	}
}

func TestGroupForeignKeys_UnnamedRowsStayIsolated(t *testing.T) {
	got := groupForeignKeys([]foreignKeyColumn{
		{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id"},
		{ColumnName: "editor_id", ReferencedTable: "users", ReferencedColumn: "id"},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 unnamed FK constraints, got %d", len(got))
	}
	if got[0].Columns[0] == got[1].Columns[0] {
		t.Fatalf("expected isolated unnamed constraints, got %#v", got)
	}
}
