package hydration

import (
	"context"
	"fmt"

	"rowgraph/internal/dbexec"
)

// Row is one flat result row: column names paired with values, in select order.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow builds a row from alternating column names and values.
func NewRow(pairs ...any) Row {
	row := Row{
		Columns: make([]string, 0, len(pairs)/2),
		Values:  make([]any, 0, len(pairs)/2),
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Columns = append(row.Columns, fmt.Sprint(pairs[i]))
		row.Values = append(row.Values, pairs[i+1])
	}
	return row
}

// Cursor yields rows one at a time. It is forward-only and not restartable.
type Cursor interface {
	Next(ctx context.Context) (Row, bool, error)
}

// SliceCursor is an in-memory Cursor.
type SliceCursor struct {
	rows []Row
	pos  int
}

// NewSliceCursor returns a cursor over rows.
func NewSliceCursor(rows ...Row) *SliceCursor {
	return &SliceCursor{rows: rows}
}

// Next implements Cursor.
func (c *SliceCursor) Next(ctx context.Context) (Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, false, err
	}
	if c.pos >= len(c.rows) {
		return Row{}, false, nil
	}
	row := c.rows[c.pos]
	c.pos++
	return row, true, nil
}

// SQLCursor adapts database rows to a Cursor. It closes the rows once they
// are exhausted or fail.
type SQLCursor struct {
	rows    dbexec.Rows
	columns []string
	closed  bool
}

// NewSQLCursor wraps rows.
func NewSQLCursor(rows dbexec.Rows) (*SQLCursor, error) {
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	return &SQLCursor{rows: rows, columns: columns}, nil
}

// Next implements Cursor.
func (c *SQLCursor) Next(ctx context.Context) (Row, bool, error) {
	if c.closed {
		return Row{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		c.Close()
		return Row{}, false, err
	}
	if !c.rows.Next() {
		err := c.rows.Err()
		c.Close()
		return Row{}, false, err
	}

	values := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.Close()
		return Row{}, false, fmt.Errorf("failed to scan row: %w", err)
	}
	return Row{Columns: c.columns, Values: values}, true, nil
}

// Close releases the underlying rows. It is safe to call more than once.
func (c *SQLCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
