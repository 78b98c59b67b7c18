package runtime

import (
	"context"

	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// Row is one table's slice of a result row: column name → value.
type Row map[string]any

// ID returns the row's identifier as int64, 0 when absent or non-numeric.
func (r Row) ID() int64 {
	v, ok := r[schema.IDColumn]
	if !ok {
		return 0
	}
	switch id := v.(type) {
	case int64:
		return id
	case int32:
		return int64(id)
	case int:
		return int64(id)
	case float64:
		return int64(id)
	}
	return 0
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// GroupedRow is one result row with its columns grouped by table alias, so
// the materializer can tell which joined table each value came from. A nil
// Row under an alias means the left join found no match.
type GroupedRow map[string]Row

// RowSet is the result of a Select: grouped rows in result order, plus the
// compiled statement for diagnostics.
type RowSet struct {
	Rows []GroupedRow
	SQL  string
}

// Len returns the number of result rows.
func (rs *RowSet) Len() int { return len(rs.Rows) }

// Executor is the single boundary the modeling layer talks to. Everything
// above it is database-agnostic; implementations own dialect translation.
type Executor interface {
	// CreateTable materializes a table from column specs. It must be
	// atomic: on failure no table exists.
	CreateTable(ctx context.Context, name string, cols []schema.ColumnSpec, opts schema.TableOptions) error

	// Insert stores one row and returns it as stored, defaults applied.
	Insert(ctx context.Context, table string, fields map[string]any) (Row, error)

	// Select compiles and runs a query, regrouping columns by table alias.
	Select(ctx context.Context, q *schema.Query) (*RowSet, error)

	// Count returns the number of rows matching the query's predicate.
	// Projection, ordering and pagination are ignored.
	Count(ctx context.Context, q *schema.Query) (int64, error)

	// Update modifies every row matching the predicate and returns the
	// updated rows.
	Update(ctx context.Context, table string, pred schema.Expr, fields map[string]any) ([]Row, error)

	// Delete removes every row matching the predicate and returns the ids
	// that were removed.
	Delete(ctx context.Context, table string, pred schema.Expr) ([]int64, error)

	// Lookup fetches at most one row matching the predicate, nil when
	// absent.
	Lookup(ctx context.Context, table string, pred schema.Expr) (Row, error)
}
