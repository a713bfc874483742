package schemasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rowgraph/internal/schemadiff"
	"rowgraph/internal/sqlutil"
)

// inspectAtlas reads one schema through the atlas inspector of the dialect.
func inspectAtlas(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, name string) (schemadiff.Snapshot, error) {
	ctx, span := otel.Tracer("rowgraph/schemasource").Start(ctx, "schemasource.inspect")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", string(dialect)),
		attribute.String("db.schema", name),
	)

	var (
		inspector schema.Inspector
		err       error
	)
	switch dialect {
	case sqlutil.SQLite:
		inspector, err = sqlite.Open(db)
	case sqlutil.Postgres:
		inspector, err = postgres.Open(db)
	default:
		err = fmt.Errorf("no atlas inspector for dialect %q", dialect)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemadiff.Snapshot{}, fmt.Errorf("failed to open %s inspector: %w", dialect, err)
	}

	s, err := inspector.InspectSchema(ctx, name, &schema.InspectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemadiff.Snapshot{}, fmt.Errorf("failed to inspect %s schema: %w", dialect, err)
	}
	snapshot := fromAtlas(s)
	span.SetAttributes(attribute.Int("db.tables", len(snapshot.Tables)))
	return snapshot, nil
}

// fromAtlas converts an inspected atlas schema.
func fromAtlas(s *schema.Schema) schemadiff.Snapshot {
	snapshot := schemadiff.Snapshot{Name: s.Name}
	for _, t := range s.Tables {
		table := schemadiff.Table{Name: t.Name}
		autoIncrementTable := hasAttr[*sqlite.AutoIncrement](t.Attrs)

		for _, c := range t.Columns {
			table.Columns = append(table.Columns, fromAtlasColumn(c))
		}
		if t.PrimaryKey != nil {
			table.PrimaryKey = partColumns(t.PrimaryKey.Parts)
			if autoIncrementTable && len(table.PrimaryKey) == 1 {
				for i := range table.Columns {
					if strings.EqualFold(table.Columns[i].Name, table.PrimaryKey[0]) {
						table.Columns[i].AutoIncrement = true
					}
				}
			}
		}
		for _, idx := range t.Indexes {
			columns := partColumns(idx.Parts)
			if len(columns) != len(idx.Parts) {
				// Expression indexes have no column form.
				continue
			}
			table.Indexes = append(table.Indexes, schemadiff.Index{
				Name:    idx.Name,
				Columns: columns,
				Unique:  idx.Unique,
			})
		}
		for _, fk := range t.ForeignKeys {
			out := schemadiff.ForeignKey{
				Name:     fk.Symbol,
				OnUpdate: string(fk.OnUpdate),
				OnDelete: string(fk.OnDelete),
			}
			for _, c := range fk.Columns {
				out.Columns = append(out.Columns, c.Name)
			}
			if fk.RefTable != nil {
				out.ReferencedTable = fk.RefTable.Name
			}
			for _, c := range fk.RefColumns {
				out.ReferencedColumns = append(out.ReferencedColumns, c.Name)
			}
			if out.Name == "" {
				// SQLite constraints are often unnamed.
				out.Name = "fk_" + t.Name + "_" + strings.Join(out.Columns, "_")
			}
			table.ForeignKeys = append(table.ForeignKeys, out)
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}
	return snapshot
}

func fromAtlasColumn(c *schema.Column) schemadiff.Column {
	col := schemadiff.Column{Name: c.Name}
	if c.Type != nil {
		col.Type = atlasType(c.Type)
		col.NotNull = !c.Type.Null
	}
	switch d := c.Default.(type) {
	case *schema.Literal:
		v := d.V
		col.Default = &v
	case *schema.RawExpr:
		v := d.X
		col.Default = &v
	}
	for _, attr := range c.Attrs {
		switch a := attr.(type) {
		case *schema.Comment:
			col.Comment = a.Text
		case *postgres.Identity:
			col.AutoIncrement = true
		}
	}
	return col.Normalize()
}

// atlasType prefers the raw declared type and rebuilds one from the parsed
// type otherwise.
func atlasType(ct *schema.ColumnType) string {
	if ct.Raw != "" {
		return ct.Raw
	}
	switch t := ct.Type.(type) {
	case *schema.IntegerType:
		if t.Unsigned {
			return t.T + " unsigned"
		}
		return t.T
	case *schema.StringType:
		if t.Size > 0 {
			return fmt.Sprintf("%s(%d)", t.T, t.Size)
		}
		return t.T
	case *schema.DecimalType:
		return fmt.Sprintf("%s(%d,%d)", t.T, t.Precision, t.Scale)
	case *schema.BoolType:
		return t.T
	case *schema.FloatType:
		return t.T
	case *schema.TimeType:
		return t.T
	case *schema.BinaryType:
		return t.T
	case *schema.JSONType:
		return t.T
	case *schema.UnsupportedType:
		return t.T
	default:
		return fmt.Sprintf("%T", t)
	}
}

func partColumns(parts []*schema.IndexPart) []string {
	var columns []string
	for _, p := range parts {
		if p.C != nil {
			columns = append(columns, p.C.Name)
		}
	}
	return columns
}

func hasAttr[T schema.Attr](attrs []schema.Attr) bool {
	for _, a := range attrs {
		if _, ok := a.(T); ok {
			return true
		}
	}
	return false
}
