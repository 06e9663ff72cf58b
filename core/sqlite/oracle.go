package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
)

// Oracle evaluates SQL on a private in-memory database. Its rows use the
// same Go types as vdbe.Row: nil, int64, float64, string and []byte.
type Oracle struct {
	db *sql.DB
}

// Result is the outcome of one query.
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// NewOracle opens an in-memory reference database.
func NewOracle() (*Oracle, error) {
	db, err := Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open reference database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return &Oracle{db: db}, nil
}

// Close closes the reference database.
func (o *Oracle) Close() error {
	return o.db.Close()
}

// Exec runs statements that return no rows, such as schema setup.
func (o *Oracle) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := o.db.ExecContext(ctx, query, args...)
	return err
}

// Query runs a query and returns every row.
func (o *Oracle) Query(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reference query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

// Eval evaluates one SQL expression.
func (o *Oracle) Eval(ctx context.Context, expr string, args ...interface{}) (interface{}, error) {
	res, err := o.Query(ctx, "SELECT "+expr, args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) != 1 || len(res.Rows[0]) != 1 {
		return nil, fmt.Errorf("expression %q gave %d rows", expr, len(res.Rows))
	}
	return res.Rows[0][0], nil
}

// Version returns the version of the reference engine.
func (o *Oracle) Version(ctx context.Context) (string, error) {
	var v string
	err := o.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&v)
	return v, err
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// Diff compares rows from the register machine with rows from the
// reference engine. It returns "" when they agree and otherwise a
// description of the first difference.
func Diff(got, want [][]interface{}) string {
	if len(got) != len(want) {
		return fmt.Sprintf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			return fmt.Sprintf("row %d: got %d columns, want %d", i, len(got[i]), len(want[i]))
		}
		for j := range want[i] {
			if !valueEqual(got[i][j], want[i][j]) {
				return fmt.Sprintf("row %d column %d: got %#v, want %#v", i, j, got[i][j], want[i][j])
			}
		}
	}
	return ""
}

func valueEqual(a, b interface{}) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && bytes.Equal(ab, bb)
	}
	return a == b
}
