package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// PG is the PostgreSQL executor on a pgx connection pool. Every statement is
// tagged with a uuid and logged at debug level with its duration.
type PG struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// PGOption configures a PG executor.
type PGOption func(*PG)

// WithLogger attaches a logger; statements are logged under "slate.exec".
func WithLogger(log *zap.Logger) PGOption {
	return func(p *PG) { p.log = log.Named("slate.exec") }
}

// NewPG wraps a connection pool as an Executor.
func NewPG(pool *pgxpool.Pool, opts ...PGOption) *PG {
	p := &PG{pool: pool, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pool exposes the underlying pool for callers that need raw access.
func (p *PG) Pool() *pgxpool.Pool { return p.pool }

// Close closes the underlying pool.
func (p *PG) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping verifies the connection is alive.
func (p *PG) Ping(ctx context.Context) error {
	if p.pool == nil {
		return ErrNoConnection
	}
	return p.pool.Ping(ctx)
}

func (p *PG) logStmt(sql string, args []any, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("stmt_id", uuid.NewString()),
		zap.String("sql", sql),
		zap.Int("args", len(args)),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		p.log.Debug("statement failed", fields...)
		return
	}
	p.log.Debug("statement", fields...)
}

// CreateTable materializes a table inside a transaction so a failure leaves
// nothing behind.
func (p *PG) CreateTable(ctx context.Context, name string, cols []schema.ColumnSpec, opts schema.TableOptions) error {
	ddl, err := CompileCreateTable(name, cols)
	if err != nil {
		return err
	}

	start := time.Now()
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return err
		}
		if opts.Comment != "" {
			comment := "COMMENT ON TABLE " + name + " IS " + quoteLiteral(opts.Comment)
			if _, err := tx.Exec(ctx, comment); err != nil {
				return err
			}
		}
		return nil
	})
	p.logStmt(ddl, nil, start, err)
	if err != nil {
		return errors.Wrapf(err, "create table %s", name)
	}
	return nil
}

func (p *PG) Insert(ctx context.Context, table string, fields map[string]any) (Row, error) {
	sql, args := CompileInsert(table, fields)

	start := time.Now()
	rows, err := p.query(ctx, sql, args)
	p.logStmt(sql, args, start, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrNoMatchingRow, "insert into %s returned nothing", table)
	}
	return rows[0], nil
}

func (p *PG) Select(ctx context.Context, q *schema.Query) (*RowSet, error) {
	sql, args, err := CompileSelect(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	grouped, err := p.queryGrouped(ctx, sql, args)
	p.logStmt(sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return &RowSet{Rows: grouped, SQL: sql}, nil
}

func (p *PG) Count(ctx context.Context, q *schema.Query) (int64, error) {
	sql, args, err := CompileCount(q)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var n int64
	err = p.pool.QueryRow(ctx, sql, args...).Scan(&n)
	p.logStmt(sql, args, start, err)
	if err != nil {
		return 0, &QueryError{SQL: sql, Err: err}
	}
	return n, nil
}

func (p *PG) Update(ctx context.Context, table string, pred schema.Expr, fields map[string]any) ([]Row, error) {
	sql, args, err := CompileUpdate(table, pred, fields)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := p.query(ctx, sql, args)
	p.logStmt(sql, args, start, err)
	return rows, err
}

func (p *PG) Delete(ctx context.Context, table string, pred schema.Expr) ([]int64, error) {
	sql, args, err := CompileDelete(table, pred)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := p.query(ctx, sql, args)
	p.logStmt(sql, args, start, err)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID())
	}
	return ids, nil
}

func (p *PG) Lookup(ctx context.Context, table string, pred schema.Expr) (Row, error) {
	sql, args, err := CompileSelect(&schema.Query{
		Table: schema.BareTable(table),
		Where: pred,
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	grouped, err := p.queryGrouped(ctx, sql, args)
	p.logStmt(sql, args, start, err)
	if err != nil {
		return nil, err
	}
	if len(grouped) == 0 {
		return nil, nil
	}
	return grouped[0][table], nil
}

// query runs a statement and flattens each result row into a Row map.
func (p *PG) query(ctx context.Context, sql string, args []any) ([]Row, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &QueryError{SQL: sql, Err: err}
		}
		row := make(Row, len(values))
		for i, fd := range rows.FieldDescriptions() {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	return out, nil
}

// queryGrouped runs a compiled SELECT whose columns are labeled
// "alias.column" (or "alias.*" for whole-row jsonb) and regroups each result
// row by table alias. A whole-row NULL from an unmatched left join becomes a
// nil Row.
func (p *PG) queryGrouped(ctx context.Context, sql string, args []any) ([]GroupedRow, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	defer rows.Close()

	var out []GroupedRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &QueryError{SQL: sql, Err: err}
		}

		grouped := make(GroupedRow)
		for i, fd := range rows.FieldDescriptions() {
			alias, column, found := strings.Cut(fd.Name, ".")
			if !found {
				alias, column = "", fd.Name
			}

			if column == "*" {
				grouped[alias] = wholeRow(values[i])
				continue
			}
			if grouped[alias] == nil {
				grouped[alias] = make(Row)
			}
			grouped[alias][column] = values[i]
		}
		out = append(out, grouped)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	return out, nil
}

// wholeRow decodes a to_jsonb(table) value into a Row. NULL stays nil.
func wholeRow(v any) Row {
	switch data := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return Row(data)
	case []byte:
		m := make(map[string]any)
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		return Row(m)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
