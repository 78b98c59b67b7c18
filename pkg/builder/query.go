package builder

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// QueryBuilder accumulates one query over a table. Builders are immutable:
// every chain method returns a fresh builder, so partial chains can be shared
// and extended independently. Argument errors stick to the builder and
// surface from the terminal operations.
type QueryBuilder struct {
	db    *DB
	model *schema.Model

	where     schema.Expr
	selection []*schema.Field
	order     []schema.Order
	group     []*schema.Field
	having    schema.Expr
	distinct  bool

	limit int64
	page  int64

	relNames  []string
	relMethod map[string]schema.JoinStrategy

	err error
}

func newQueryBuilder(db *DB, model *schema.Model) *QueryBuilder {
	return &QueryBuilder{db: db, model: model}
}

// clone copies the builder; slice and map state is duplicated so extensions
// never leak back.
func (qb *QueryBuilder) clone() *QueryBuilder {
	next := *qb
	next.selection = append([]*schema.Field(nil), qb.selection...)
	next.order = append([]schema.Order(nil), qb.order...)
	next.group = append([]*schema.Field(nil), qb.group...)
	next.relNames = append([]string(nil), qb.relNames...)
	if qb.relMethod != nil {
		next.relMethod = make(map[string]schema.JoinStrategy, len(qb.relMethod))
		for k, v := range qb.relMethod {
			next.relMethod[k] = v
		}
	}
	return &next
}

func (qb *QueryBuilder) fail(err error) *QueryBuilder {
	next := qb.clone()
	if next.err == nil {
		next.err = err
	}
	return next
}

// Model returns the root table schema.
func (qb *QueryBuilder) Model() *schema.Model { return qb.model }

// Err returns the sticky argument error, also surfaced by terminals.
func (qb *QueryBuilder) Err() error { return qb.err }

// Where narrows the query. Each argument may be a schema.Expr, a
// func(*schema.Model) schema.Expr (a nil result is skipped), or a
// *schema.Field (shorthand for IS NOT NULL). Arguments within one call are
// OR'd together; successive calls are AND'd. A literal bool is rejected:
// comparisons on field handles build expressions, they do not evaluate.
func (qb *QueryBuilder) Where(conds ...any) *QueryBuilder {
	next := qb.clone()

	var parts []schema.Expr
	for _, cond := range conds {
		expr, err := qb.toExpr(cond)
		if err != nil {
			return qb.fail(err)
		}
		if expr != nil {
			parts = append(parts, expr)
		}
	}

	next.where = schema.And(next.where, schema.Or(parts...))
	return next
}

func (qb *QueryBuilder) toExpr(cond any) (schema.Expr, error) {
	switch c := cond.(type) {
	case nil:
		return nil, nil
	case schema.Expr:
		return c, nil
	case *schema.Field:
		return c.NotNull(), nil
	case func(*schema.Model) schema.Expr:
		return c(qb.model), nil
	case bool:
		return nil, errors.WithStack(runtime.ErrBoolPredicate)
	}
	return nil, errors.Newf("cannot use %T as a predicate", cond)
}

// WhereEq narrows by column equality, all entries conjoined. Keys are
// processed in sorted order so the compiled statement is deterministic.
func (qb *QueryBuilder) WhereEq(filters map[string]any) *QueryBuilder {
	next := qb.clone()

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := qb.model.Field(name)
		if field == nil {
			return qb.fail(errors.Wrapf(runtime.ErrUnknownField, "%s.%s", qb.model.Name(), name))
		}
		next.where = schema.And(next.where, field.Eq(filters[name]))
	}
	return next
}

// Select sets the projection. Arguments may be *schema.Field or column name
// strings resolved on the root table. Fields from a later call come before
// the ones already selected.
func (qb *QueryBuilder) Select(fields ...any) *QueryBuilder {
	next := qb.clone()

	resolved := make([]*schema.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.(type) {
		case *schema.Field:
			resolved = append(resolved, v)
		case string:
			field := qb.model.Field(v)
			if field == nil {
				return qb.fail(errors.Wrapf(runtime.ErrUnknownField, "%s.%s", qb.model.Name(), v))
			}
			resolved = append(resolved, field)
		default:
			return qb.fail(errors.Newf("cannot select %T", f))
		}
	}

	next.selection = append(resolved, next.selection...)
	return next
}

// OrderBy appends ordering terms. Use Field.Asc / Field.Desc to build them.
func (qb *QueryBuilder) OrderBy(orders ...schema.Order) *QueryBuilder {
	next := qb.clone()
	next.order = append(next.order, orders...)
	return next
}

// GroupBy appends grouping fields.
func (qb *QueryBuilder) GroupBy(fields ...*schema.Field) *QueryBuilder {
	next := qb.clone()
	next.group = append(next.group, fields...)
	return next
}

// Having sets the group predicate.
func (qb *QueryBuilder) Having(cond schema.Expr) *QueryBuilder {
	next := qb.clone()
	next.having = schema.And(next.having, cond)
	return next
}

// Distinct deduplicates result rows.
func (qb *QueryBuilder) Distinct() *QueryBuilder {
	next := qb.clone()
	next.distinct = true
	return next
}

// Join attaches relationships by name; no names means all of them. Each
// relationship's own strategy decides between a left join and narrowing the
// predicate.
func (qb *QueryBuilder) Join(names ...string) *QueryBuilder {
	next := qb.clone()

	if len(names) == 0 {
		names = qb.model.RelationshipNames()
	}
	for _, name := range names {
		if qb.model.Relationship(name) == nil {
			return qb.fail(errors.Wrapf(schema.ErrInvalidRelationship,
				"%s has no relationship %q", qb.model.Name(), name))
		}
		if !contains(next.relNames, name) {
			next.relNames = append(next.relNames, name)
		}
	}
	return next
}

// JoinUsing attaches relationships with a strategy override. The override
// applies to a clone of each descriptor; the declaration keeps its own.
func (qb *QueryBuilder) JoinUsing(method schema.JoinStrategy, names ...string) *QueryBuilder {
	next := qb.Join(names...)
	if next.err != nil {
		return next
	}

	if len(names) == 0 {
		names = qb.model.RelationshipNames()
	}
	if next.relMethod == nil {
		next.relMethod = make(map[string]schema.JoinStrategy, len(names))
	}
	for _, name := range names {
		next.relMethod[name] = method
	}
	return next
}

// Paginate sets a result window. Pages are 1-indexed; the offset is
// limit*(page-1).
func (qb *QueryBuilder) Paginate(limit, page int64) *QueryBuilder {
	next := qb.clone()
	if limit < 0 || page < 1 {
		return qb.fail(errors.Newf("invalid pagination: limit=%d page=%d", limit, page))
	}
	next.limit = limit
	next.page = page
	return next
}

func (qb *QueryBuilder) offset() int64 {
	if qb.page <= 1 {
		return 0
	}
	return qb.limit * (qb.page - 1)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
