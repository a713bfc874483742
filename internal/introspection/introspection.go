// Package introspection reads table definitions from a MySQL-compatible
// information_schema into schema snapshots.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rowgraph/internal/schemadiff"
)

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// InspectDatabase queries information_schema for the base tables of
// databaseName. Views are skipped. Class names are left empty.
func InspectDatabase(ctx context.Context, db Queryer, databaseName string) (schemadiff.Snapshot, error) {
	ctx, span := startSpan(ctx, "introspection.build_snapshot",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	snapshot := schemadiff.Snapshot{Name: databaseName}

	tables, err := getTables(ctx, db, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return schemadiff.Snapshot{}, fmt.Errorf("failed to get tables: %w", err)
	}

	for _, info := range tables {
		columns, err := getColumns(ctx, db, databaseName, info.Name)
		if err != nil {
			recordSpanError(span, err)
			return schemadiff.Snapshot{}, fmt.Errorf("failed to get columns for %s: %w", info.Name, err)
		}

		primaryKey, err := getPrimaryKey(ctx, db, databaseName, info.Name)
		if err != nil {
			recordSpanError(span, err)
			return schemadiff.Snapshot{}, fmt.Errorf("failed to get primary key for table %s: %w", info.Name, err)
		}

		foreignKeys, err := getForeignKeys(ctx, db, databaseName, info.Name)
		if err != nil {
			recordSpanError(span, err)
			return schemadiff.Snapshot{}, fmt.Errorf("failed to get foreign keys for table %s: %w", info.Name, err)
		}

		indexes, err := getIndexes(ctx, db, databaseName, info.Name)
		if err != nil {
			recordSpanError(span, err)
			return schemadiff.Snapshot{}, fmt.Errorf("failed to get indexes for table %s: %w", info.Name, err)
		}

		snapshot.Tables = append(snapshot.Tables, schemadiff.Table{
			Name:        info.Name,
			Columns:     columns,
			PrimaryKey:  primaryKey,
			Indexes:     indexes,
			ForeignKeys: foreignKeys,
			Options:     info.Options,
		})
	}

	span.SetAttributes(attribute.Int("db.tables", len(snapshot.Tables)))
	return snapshot, nil
}

type tableInfo struct {
	Name    string
	Options schemadiff.TableOptions
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]tableInfo, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, ENGINE, TABLE_COLLATION
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []tableInfo
	for rows.Next() {
		var name string
		var engine, collation sql.NullString
		if err := rows.Scan(&name, &engine, &collation); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		info := tableInfo{Name: name}
		info.Options.Engine = engine.String
		if collation.Valid {
			info.Options.Collation = collation.String
			if charset, _, ok := strings.Cut(collation.String, "_"); ok {
				info.Options.Charset = charset
			}
		}
		tables = append(tables, info)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]schemadiff.Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			COLUMN_COMMENT,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []schemadiff.Column
	for rows.Next() {
		var col schemadiff.Column
		var isNullable string
		var columnDefault sql.NullString
		var extra string
		var columnComment sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &columnComment, &isNullable, &columnDefault, &extra); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if columnComment.Valid {
			col.Comment = strings.TrimSpace(columnComment.String)
		}
		col.NotNull = !strings.EqualFold(isNullable, "YES")
		if columnDefault.Valid {
			value := columnDefault.String
			col.Default = &value
		}
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		columns = append(columns, col.Normalize())
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKey(ctx context.Context, db Queryer, databaseName, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_key",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var primaryKey []string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		primaryKey = append(primaryKey, columnName)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return primaryKey, nil
}

func getForeignKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]schemadiff.ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			k.CONSTRAINT_NAME,
			k.COLUMN_NAME,
			k.REFERENCED_TABLE_NAME,
			k.REFERENCED_COLUMN_NAME,
			k.ORDINAL_POSITION,
			r.UPDATE_RULE,
			r.DELETE_RULE
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS r
			ON r.CONSTRAINT_SCHEMA = k.TABLE_SCHEMA
			AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
			AND r.TABLE_NAME = k.TABLE_NAME
		WHERE k.TABLE_SCHEMA = ?
			AND k.TABLE_NAME = ?
			AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []foreignKeyColumn
	for rows.Next() {
		var fk foreignKeyColumn
		if err := rows.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable,
			&fk.ReferencedColumn, &fk.OrdinalPosition, &fk.UpdateRule, &fk.DeleteRule); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		columns = append(columns, fk)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return groupForeignKeys(columns), nil
}

func getIndexes(ctx context.Context, db Queryer, databaseName, tableName string) ([]schemadiff.Index, error) {
	ctx, span := startSpan(ctx, "introspection.get_indexes",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			INDEX_NAME,
			NON_UNIQUE,
			SEQ_IN_INDEX,
			COLUMN_NAME,
			INDEX_TYPE
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	indexByName := make(map[string]*schemadiff.Index)
	for rows.Next() {
		var indexName string
		var nonUnique int
		var seq int
		var columnName string
		var indexType string
		if err := rows.Scan(&indexName, &nonUnique, &seq, &columnName, &indexType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}

		index, ok := indexByName[indexName]
		if !ok {
			index = &schemadiff.Index{
				Name:   indexName,
				Unique: nonUnique == 0,
				Type:   strings.ToLower(strings.TrimSpace(indexType)),
			}
			indexByName[indexName] = index
		}
		index.Columns = append(index.Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	indexes := make([]schemadiff.Index, 0, len(indexByName))
	for _, index := range indexByName {
		indexes = append(indexes, *index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("rowgraph/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
