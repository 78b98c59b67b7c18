package builder

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// relJoin is one resolved relationship attachment: the descriptor after any
// strategy override, the resolved target, its aliased copy and the slot name
// it fills on each record. base stays unaliased; records built from joined
// rows bind to it so their own writes address the real table.
type relJoin struct {
	name   string
	alias  string
	rel    *schema.Relationship
	base   *schema.Model
	target *schema.Model
}

func (qb *QueryBuilder) resolveRels() ([]relJoin, error) {
	rels := make([]relJoin, 0, len(qb.relNames))
	for _, name := range qb.relNames {
		rel := qb.model.Relationship(name)
		if rel == nil {
			return nil, errors.Wrapf(schema.ErrInvalidRelationship,
				"%s has no relationship %q", qb.model.Name(), name)
		}
		if method, ok := qb.relMethod[name]; ok {
			rel = rel.Clone(schema.WithJoin(method))
		}
		if err := rel.Err(); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", qb.model.Name(), name)
		}

		target, err := rel.Target().Resolve(qb.db.lookupModel)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", qb.model.Name(), name)
		}

		alias := rel.Alias(name)
		rels = append(rels, relJoin{
			name:   name,
			alias:  alias,
			rel:    rel,
			base:   target,
			target: target.WithAlias(alias),
		})
	}
	return rels, nil
}

// projection builds the final field list: the root id always comes first so
// rows can be regrouped per record, then the user's selection (or all root
// fields), then every joined target's fields. Fields the caller addressed on
// an unaliased target are re-homed onto the join alias.
func (qb *QueryBuilder) projection(rels []relJoin) []*schema.Field {
	fields := qb.selection
	if len(fields) == 0 {
		fields = rootFields(qb.model)
	}

	out := []*schema.Field{qb.model.ID()}
	covered := make(map[string]bool)

	for _, f := range fields {
		f = rehome(f, qb.model, rels)
		if f.Owner().Alias() != qb.model.Alias() {
			covered[f.Owner().Alias()] = true
		}
		if f.Owner().Alias() == qb.model.Alias() && f.Column() == schema.IDColumn {
			continue
		}
		out = append(out, f)
	}

	for _, rj := range rels {
		if covered[rj.alias] {
			continue
		}
		out = append(out, targetFields(rj.target)...)
	}
	return out
}

func rootFields(m *schema.Model) []*schema.Field {
	if m.Bare() {
		return []*schema.Field{m.Field("*")}
	}
	fields := make([]*schema.Field, 0, len(m.Fields()))
	for _, spec := range m.Fields() {
		fields = append(fields, m.Field(spec.Name))
	}
	return fields
}

func targetFields(m *schema.Model) []*schema.Field {
	if m.Bare() {
		return []*schema.Field{m.Field("*")}
	}
	fields := make([]*schema.Field, 0, len(m.Fields())+1)
	if m.Spec(schema.IDColumn) == nil {
		fields = append(fields, m.Field(schema.IDColumn))
	}
	for _, spec := range m.Fields() {
		fields = append(fields, m.Field(spec.Name))
	}
	return fields
}

// rehome moves a field selected on the bare target model onto the join
// alias, so `books.Field("title")` works in a Select even though the join
// addresses the table under a generated alias.
func rehome(f *schema.Field, root *schema.Model, rels []relJoin) *schema.Field {
	if f.Owner().Alias() == root.Alias() {
		return f
	}
	for _, rj := range rels {
		if f.Owner().Name() == rj.target.Name() && f.Owner().Alias() == f.Owner().Name() {
			if moved := rj.target.Field(f.Column()); moved != nil {
				return moved
			}
		}
	}
	return f
}

// buildQuery assembles the query AST: left joins for left-strategy and
// on-relationships, inner strategies folded into the predicate with the
// target as an extra FROM entry.
func (qb *QueryBuilder) buildQuery(rels []relJoin, where schema.Expr, limit, offset int64) *schema.Query {
	q := &schema.Query{
		Table:      qb.model,
		Projection: qb.projection(rels),
		OrderBy:    qb.order,
		GroupBy:    qb.group,
		Having:     qb.having,
		Distinct:   qb.distinct,
		Limit:      limit,
		Offset:     offset,
	}

	for _, rj := range rels {
		if rj.rel.HasOn() {
			q.Joins = append(q.Joins, rj.rel.On(qb.model, rj.target)...)
			continue
		}
		cond := rj.rel.Condition(qb.model, rj.target)
		if rj.rel.Strategy() == schema.JoinInner {
			where = schema.And(where, cond)
			q.Extra = append(q.Extra, rj.target)
			continue
		}
		q.Joins = append(q.Joins, schema.Join{Table: rj.target, On: cond})
	}

	q.Where = where
	q.Extra = appendPredicateTables(q, where)
	return q
}

// appendPredicateTables adds FROM entries for tables the predicate mentions
// that are neither the root nor already joined.
func appendPredicateTables(q *schema.Query, where schema.Expr) []*schema.Model {
	known := make(map[string]bool)
	known[q.Table.Alias()] = true
	for _, j := range q.Joins {
		known[j.Table.Alias()] = true
	}
	for _, m := range q.Extra {
		known[m.Alias()] = true
	}

	extra := q.Extra
	for _, m := range schema.ExprTables(where) {
		if !known[m.Alias()] {
			known[m.Alias()] = true
			extra = append(extra, m)
		}
	}
	return extra
}

// Count returns the number of matching rows. It runs the predicate only;
// projection, ordering and pagination are left out of the statement.
func (qb *QueryBuilder) Count(ctx context.Context) (int64, error) {
	if qb.err != nil {
		return 0, qb.err
	}
	q := &schema.Query{Table: qb.model, Where: qb.where}
	q.Extra = appendPredicateTables(q, qb.where)
	return qb.db.exec.Count(ctx, q)
}

// Collect executes the query and materializes the rows into records. With
// both pagination and relationships in play the window is computed on the
// root table first, then the join query is scoped to those ids, so a page
// counts parent records rather than join rows.
func (qb *QueryBuilder) Collect(ctx context.Context) (*ResultSet, error) {
	if qb.err != nil {
		return nil, qb.err
	}

	rels, err := qb.resolveRels()
	if err != nil {
		return nil, err
	}

	where := qb.where
	limit, offset := qb.limit, qb.offset()

	if limit > 0 && len(rels) > 0 {
		ids, err := qb.windowIDs(ctx, where, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return emptyResultSet(qb.db, qb.model, rels), nil
		}
		where = qb.model.ID().Belongs(ids...)
		limit, offset = 0, 0
	}

	q := qb.buildQuery(rels, where, limit, offset)
	rows, err := qb.db.exec.Select(ctx, q)
	if err != nil {
		return nil, err
	}

	rs := materialize(qb.db, qb.model, rows, rels)
	rs.Metadata = Metadata{
		SQL:           rows.SQL,
		Limit:         qb.limit,
		Page:          qb.page,
		Relationships: qb.relNames,
	}
	return rs, nil
}

// windowIDs selects just the identifiers of the requested page.
func (qb *QueryBuilder) windowIDs(ctx context.Context, where schema.Expr, limit, offset int64) ([]any, error) {
	q := &schema.Query{
		Table:      qb.model,
		Where:      where,
		Projection: []*schema.Field{qb.model.ID()},
		OrderBy:    qb.order,
		Distinct:   qb.distinct,
		Limit:      limit,
		Offset:     offset,
	}
	q.Extra = appendPredicateTables(q, where)

	rows, err := qb.db.exec.Select(ctx, q)
	if err != nil {
		return nil, err
	}

	ids := make([]any, 0, rows.Len())
	for _, grouped := range rows.Rows {
		if main := grouped[qb.model.Alias()]; main != nil {
			ids = append(ids, main[schema.IDColumn])
		}
	}
	return ids, nil
}

// First fetches the first matching record, nil when nothing matches.
func (qb *QueryBuilder) First(ctx context.Context) (*Record, error) {
	rs, err := qb.Paginate(1, 1).Collect(ctx)
	if err != nil {
		return nil, err
	}
	return rs.First(), nil
}

// CollectOrFail is Collect, but an empty result is an error.
func (qb *QueryBuilder) CollectOrFail(ctx context.Context) (*ResultSet, error) {
	rs, err := qb.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return nil, errors.Wrapf(runtime.ErrNothingFound, "%s", qb.model.Name())
	}
	return rs, nil
}

// FirstOrFail is First, but an absent record is an error.
func (qb *QueryBuilder) FirstOrFail(ctx context.Context) (*Record, error) {
	rec, err := qb.First(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.Wrapf(runtime.ErrNothingFound, "%s", qb.model.Name())
	}
	return rec, nil
}

// Each runs fn over every matching record. The query re-executes on every
// call; builders never cache results.
func (qb *QueryBuilder) Each(ctx context.Context, fn func(*Record) error) error {
	rs, err := qb.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range rs.Records() {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Update writes fields to every matching row and returns the affected ids.
func (qb *QueryBuilder) Update(ctx context.Context, fields map[string]any) ([]int64, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	rows, err := qb.db.exec.Update(ctx, qb.model.Name(), qb.where, fields)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID())
	}
	return ids, nil
}

// Delete removes every matching row and returns the removed ids.
func (qb *QueryBuilder) Delete(ctx context.Context) ([]int64, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	return qb.db.exec.Delete(ctx, qb.model.Name(), qb.where)
}
