package introspection

import (
	"fmt"
	"sort"

	"rowgraph/internal/schemadiff"
)

// foreignKeyColumn is one KEY_COLUMN_USAGE row of a foreign key constraint.
type foreignKeyColumn struct {
	ConstraintName   string
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	OrdinalPosition  int
	UpdateRule       string
	DeleteRule       string
}

// groupForeignKeys groups per-column rows into ordered constraints, sorted by
// constraint name.
func groupForeignKeys(columns []foreignKeyColumn) []schemadiff.ForeignKey {
	if len(columns) == 0 {
		return nil
	}

	type row struct {
		key   string
		fk    foreignKeyColumn
		index int
	}
	rows := make([]row, 0, len(columns))
	for i, fk := range columns {
		key := fk.ConstraintName
		if key == "" {
			// Unnamed constraints stay isolated to avoid accidental merging.
			key = fmt.Sprintf("__unnamed_%d", i)
		}
		rows = append(rows, row{key: key, fk: fk, index: i})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		iPos := rows[i].fk.OrdinalPosition
		jPos := rows[j].fk.OrdinalPosition
		if iPos != jPos {
			if iPos == 0 {
				return false
			}
			if jPos == 0 {
				return true
			}
			return iPos < jPos
		}
		return rows[i].index < rows[j].index
	})

	var orderedKeys []string
	grouped := make(map[string]*schemadiff.ForeignKey)
	for _, item := range rows {
		group, ok := grouped[item.key]
		if !ok {
			group = &schemadiff.ForeignKey{
				Name:            item.fk.ConstraintName,
				ReferencedTable: item.fk.ReferencedTable,
				OnUpdate:        item.fk.UpdateRule,
				OnDelete:        item.fk.DeleteRule,
			}
			grouped[item.key] = group
			orderedKeys = append(orderedKeys, item.key)
		}
		group.Columns = append(group.Columns, item.fk.ColumnName)
		group.ReferencedColumns = append(group.ReferencedColumns, item.fk.ReferencedColumn)
	}

	result := make([]schemadiff.ForeignKey, 0, len(orderedKeys))
	for _, key := range orderedKeys {
		result = append(result, *grouped[key])
	}
	return result
}
