// Package schemafilter applies allow/deny filters to schema snapshots.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"rowgraph/internal/schemadiff"
)

// Config controls allow/deny filters for tables and columns. Patterns are
// case-insensitive path.Match globs; "*" keys in the column maps apply to
// every table.
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables"`
	DenyTables   []string            `mapstructure:"deny_tables"`
	AllowColumns map[string][]string `mapstructure:"allow_columns"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns"`
}

// IsZero reports whether the config filters nothing.
func (c Config) IsZero() bool {
	return len(c.AllowTables) == 0 && len(c.DenyTables) == 0 &&
		len(c.AllowColumns) == 0 && len(c.DenyColumns) == 0
}

// Apply filters tables, columns, indexes, and foreign keys in place.
// Missing allow lists default to allow-all; deny rules always win.
func Apply(snapshot *schemadiff.Snapshot, cfg Config) {
	if snapshot == nil || cfg.IsZero() {
		return
	}

	allowedTableNames := make(map[string]bool)
	filteredTables := make([]schemadiff.Table, 0, len(snapshot.Tables))
	for _, table := range snapshot.Tables {
		if !TableAllowed(table.Name, cfg) {
			continue
		}
		filteredTables = append(filteredTables, table)
		allowedTableNames[strings.ToLower(table.Name)] = true
	}

	allowedColumnsByTable := make(map[string]map[string]bool, len(filteredTables))
	for i := range filteredTables {
		table := &filteredTables[i]
		allowedColumns := make(map[string]bool)
		filteredColumns := make([]schemadiff.Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if !columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				continue
			}
			filteredColumns = append(filteredColumns, column)
			allowedColumns[strings.ToLower(column.Name)] = true
		}

		table.Columns = filteredColumns
		allowedColumnsByTable[strings.ToLower(table.Name)] = allowedColumns
	}

	finalTables := make([]schemadiff.Table, 0, len(filteredTables))
	for _, table := range filteredTables {
		if len(table.Columns) == 0 {
			continue
		}

		allowedColumns := allowedColumnsByTable[strings.ToLower(table.Name)]
		if !allAllowed(table.PrimaryKey, allowedColumns) {
			table.PrimaryKey = nil
		}
		table.Indexes = filterIndexes(table.Indexes, allowedColumns)
		table.ForeignKeys = filterForeignKeys(table.ForeignKeys, allowedColumns, allowedTableNames, allowedColumnsByTable)
		finalTables = append(finalTables, table)
	}

	snapshot.Tables = finalTables
}

// TableAllowed reports whether a table passes the table filters.
func TableAllowed(table string, cfg Config) bool {
	if matchesAny(table, cfg.DenyTables) {
		return false
	}
	if len(cfg.AllowTables) == 0 {
		return true
	}
	return matchesAny(table, cfg.AllowTables)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	denyPatterns := mergePatterns(deny, table)
	if matchesAny(column, denyPatterns) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

func allAllowed(columns []string, allowed map[string]bool) bool {
	for _, col := range columns {
		if !allowed[strings.ToLower(col)] {
			return false
		}
	}
	return true
}

func filterIndexes(indexes []schemadiff.Index, allowedColumns map[string]bool) []schemadiff.Index {
	filtered := make([]schemadiff.Index, 0, len(indexes))
	for _, idx := range indexes {
		if allAllowed(idx.Columns, allowedColumns) {
			filtered = append(filtered, idx)
		}
	}
	return filtered
}

func filterForeignKeys(fks []schemadiff.ForeignKey, allowedColumns map[string]bool, allowedTables map[string]bool, allowedColumnsByTable map[string]map[string]bool) []schemadiff.ForeignKey {
	filtered := make([]schemadiff.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if !allAllowed(fk.Columns, allowedColumns) {
			continue
		}
		remote := strings.ToLower(fk.ReferencedTable)
		if !allowedTables[remote] {
			continue
		}
		if !allAllowed(fk.ReferencedColumns, allowedColumnsByTable[remote]) {
			continue
		}
		filtered = append(filtered, fk)
	}
	return filtered
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
