package builder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// fakeExec is an in-memory Executor that interprets the query AST directly,
// so builder and materializer behavior can be tested without a database.
type fakeExec struct {
	tables  map[string][]runtime.Row
	columns map[string][]schema.ColumnSpec
	nextID  map[string]int64

	failCreate map[string]bool
	created    []string
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		tables:     make(map[string][]runtime.Row),
		columns:    make(map[string][]schema.ColumnSpec),
		nextID:     make(map[string]int64),
		failCreate: make(map[string]bool),
	}
}

func (f *fakeExec) CreateTable(_ context.Context, name string, cols []schema.ColumnSpec, _ schema.TableOptions) error {
	if f.failCreate[name] {
		return errors.Newf("create table %s: induced failure", name)
	}
	if _, ok := f.tables[name]; ok {
		return errors.Newf("table %s already exists", name)
	}
	f.tables[name] = nil
	f.columns[name] = cols
	f.created = append(f.created, name)
	return nil
}

func (f *fakeExec) Insert(_ context.Context, table string, fields map[string]any) (runtime.Row, error) {
	if _, ok := f.tables[table]; !ok {
		return nil, errors.Newf("no table %s", table)
	}

	f.nextID[table]++
	row := runtime.Row{schema.IDColumn: f.nextID[table]}
	for _, col := range f.columns[table] {
		if col.Name != schema.IDColumn {
			row[col.Name] = nil
		}
	}
	for k, v := range fields {
		row[k] = v
	}
	f.tables[table] = append(f.tables[table], row)
	return row.Clone(), nil
}

// env maps table aliases to the row currently bound to them while an
// expression is evaluated.
type env map[string]runtime.Row

func (f *fakeExec) Select(_ context.Context, q *schema.Query) (*runtime.RowSet, error) {
	envs, err := f.evaluate(q)
	if err != nil {
		return nil, err
	}

	projection := q.Projection
	if len(projection) == 0 {
		return nil, errors.New("fake executor expects an explicit projection")
	}

	out := &runtime.RowSet{SQL: q.String()}
	for _, e := range envs {
		grouped := make(runtime.GroupedRow)
		for _, field := range projection {
			alias := field.Owner().Alias()
			row := e[alias]
			if field.Column() == "*" {
				if row == nil {
					grouped[alias] = nil
				} else {
					grouped[alias] = row.Clone()
				}
				continue
			}
			if grouped[alias] == nil {
				grouped[alias] = make(runtime.Row)
			}
			if row != nil {
				grouped[alias][field.Column()] = row[field.Column()]
			} else {
				grouped[alias][field.Column()] = nil
			}
		}
		out.Rows = append(out.Rows, grouped)
	}
	return out, nil
}

func (f *fakeExec) Count(_ context.Context, q *schema.Query) (int64, error) {
	envs, err := f.evaluate(&schema.Query{
		Table: q.Table,
		Where: q.Where,
		Extra: q.Extra,
		Joins: q.Joins,
	})
	if err != nil {
		return 0, err
	}
	if len(q.Joins)+len(q.Extra) == 0 {
		return int64(len(envs)), nil
	}
	seen := make(map[int64]bool)
	for _, e := range envs {
		if row := e[q.Table.Alias()]; row != nil {
			seen[row.ID()] = true
		}
	}
	return int64(len(seen)), nil
}

func (f *fakeExec) Update(_ context.Context, table string, pred schema.Expr, fields map[string]any) ([]runtime.Row, error) {
	var out []runtime.Row
	for _, row := range f.tables[table] {
		ok, err := evalExpr(env{table: row}, pred)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for k, v := range fields {
			row[k] = v
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

func (f *fakeExec) Delete(_ context.Context, table string, pred schema.Expr) ([]int64, error) {
	var kept []runtime.Row
	var removed []int64
	for _, row := range f.tables[table] {
		ok, err := evalExpr(env{table: row}, pred)
		if err != nil {
			return nil, err
		}
		if ok {
			removed = append(removed, row.ID())
		} else {
			kept = append(kept, row)
		}
	}
	f.tables[table] = kept
	return removed, nil
}

func (f *fakeExec) Lookup(_ context.Context, table string, pred schema.Expr) (runtime.Row, error) {
	for _, row := range f.tables[table] {
		ok, err := evalExpr(env{table: row}, pred)
		if err != nil {
			return nil, err
		}
		if ok {
			return row.Clone(), nil
		}
	}
	return nil, nil
}

// evaluate expands FROM entries and left joins into bound environments,
// filters them and applies ordering and the window, mirroring what the SQL
// compiler emits.
func (f *fakeExec) evaluate(q *schema.Query) ([]env, error) {
	base := []env{}
	for _, row := range f.tables[q.Table.Name()] {
		base = append(base, env{q.Table.Alias(): row})
	}

	for _, extra := range q.Extra {
		var next []env
		for _, e := range base {
			for _, row := range f.tables[extra.Name()] {
				joined := cloneEnv(e)
				joined[extra.Alias()] = row
				next = append(next, joined)
			}
		}
		base = next
	}

	for _, join := range q.Joins {
		var next []env
		for _, e := range base {
			matched := false
			for _, row := range f.tables[join.Table.Name()] {
				candidate := cloneEnv(e)
				candidate[join.Table.Alias()] = row
				ok, err := evalExpr(candidate, join.On)
				if err != nil {
					return nil, err
				}
				if ok {
					matched = true
					next = append(next, candidate)
				}
			}
			if !matched {
				miss := cloneEnv(e)
				miss[join.Table.Alias()] = nil
				next = append(next, miss)
			}
		}
		base = next
	}

	var filtered []env
	for _, e := range base {
		ok, err := evalExpr(e, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, e)
		}
	}

	orderBy := q.OrderBy
	if len(orderBy) == 0 && q.Limit > 0 {
		orderBy = []schema.Order{q.Table.ID().Asc()}
	}
	if len(orderBy) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, o := range orderBy {
				a := fieldValue(filtered[i], o.Field)
				b := fieldValue(filtered[j], o.Field)
				c := compareValues(a, b)
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= int64(len(filtered)) {
			filtered = nil
		} else {
			filtered = filtered[q.Offset:]
		}
	}
	if q.Limit > 0 && int64(len(filtered)) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

func cloneEnv(e env) env {
	out := make(env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func fieldValue(e env, f *schema.Field) any {
	row := e[f.Owner().Alias()]
	if row == nil {
		return nil
	}
	return row[f.Column()]
}

func evalExpr(e env, expr schema.Expr) (bool, error) {
	if expr == nil {
		return true, nil
	}

	switch x := expr.(type) {
	case schema.Comparison:
		left := fieldValue(e, x.Field)
		right := x.Value
		if f, ok := right.(*schema.Field); ok {
			right = fieldValue(e, f)
		}
		if right == nil {
			switch x.Op {
			case schema.OpEq:
				return left == nil, nil
			case schema.OpNe:
				return left != nil, nil
			}
			return false, errors.Newf("cannot evaluate %s against nil", x.Op)
		}
		if left == nil {
			return false, nil
		}
		return compareOp(x.Op, left, right)

	case schema.Logical:
		for _, p := range x.Parts {
			ok, err := evalExpr(e, p)
			if err != nil {
				return false, err
			}
			if x.Op == "AND" && !ok {
				return false, nil
			}
			if x.Op == "OR" && ok {
				return true, nil
			}
		}
		return x.Op == "AND", nil

	case schema.Belongs:
		left := fieldValue(e, x.Field)
		for _, v := range x.Values {
			if compareValues(left, v) == 0 {
				return true, nil
			}
		}
		return false, nil

	case schema.Contains:
		list := fieldValue(e, x.Field)
		needle := x.Value
		if f, ok := needle.(*schema.Field); ok {
			needle = fieldValue(e, f)
		}
		for _, v := range toSlice(list) {
			if compareValues(v, needle) == 0 {
				return true, nil
			}
		}
		return false, nil

	case schema.NullCheck:
		isNull := fieldValue(e, x.Field) == nil
		return isNull != x.Not, nil
	}
	return false, errors.Newf("cannot evaluate %T", expr)
}

func compareOp(op string, left, right any) (bool, error) {
	c := compareValues(left, right)
	switch op {
	case schema.OpEq:
		return c == 0, nil
	case schema.OpNe:
		return c != 0, nil
	case schema.OpGt:
		return c > 0, nil
	case schema.OpGte:
		return c >= 0, nil
	case schema.OpLt:
		return c < 0, nil
	case schema.OpLte:
		return c <= 0, nil
	case schema.OpLike:
		pattern := strings.ReplaceAll(fmt.Sprint(right), "%", "")
		return strings.Contains(fmt.Sprint(left), pattern), nil
	}
	return false, errors.Newf("unknown operator %s", op)
}

// compareValues orders loosely: numerics by value, everything else by
// printed form.
func compareValues(a, b any) int {
	na, aNum := toFloat(a)
	nb, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []int64:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out
	}
	return nil
}
