package schema

import "fmt"

// Expr is a node in the predicate tree handed to the executor. The tree is
// built from Field comparison methods and combined with And / Or; the runtime
// compiler walks it to produce SQL.
type Expr interface {
	isExpr()
}

// Comparison operators.
const (
	OpEq   = "="
	OpNe   = "<>"
	OpGt   = ">"
	OpGte  = ">="
	OpLt   = "<"
	OpLte  = "<="
	OpLike = "LIKE"
)

// Comparison compares a field against a value or another field. A nil value
// with OpEq / OpNe compiles to IS NULL / IS NOT NULL.
type Comparison struct {
	Field *Field
	Op    string
	Value any // literal, or *Field for column-to-column comparison
}

// Logical combines sub-expressions with AND or OR.
type Logical struct {
	Op    string // "AND" or "OR"
	Parts []Expr
}

// Belongs tests membership of a field in a literal set.
type Belongs struct {
	Field  *Field
	Values []any
}

// Contains tests whether a list column contains a value (or another field).
type Contains struct {
	Field *Field
	Value any
}

// NullCheck tests a field for NULL.
type NullCheck struct {
	Field *Field
	Not   bool // true = IS NOT NULL
}

// Raw is a verbatim SQL fragment for the places the expression surface does
// not cover. Use sparingly.
type Raw struct {
	SQL string
}

func (Comparison) isExpr() {}
func (Logical) isExpr()    {}
func (Belongs) isExpr()    {}
func (Contains) isExpr()   {}
func (NullCheck) isExpr()  {}
func (Raw) isExpr()        {}

// And conjoins expressions, ignoring nils. Returns nil when nothing remains,
// so an empty accumulator can be folded without special-casing.
func And(parts ...Expr) Expr {
	return combine("AND", parts)
}

// Or disjoins expressions, ignoring nils.
func Or(parts ...Expr) Expr {
	return combine("OR", parts)
}

func combine(op string, parts []Expr) Expr {
	kept := make([]Expr, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		if l, ok := p.(Logical); ok && l.Op == op {
			kept = append(kept, l.Parts...)
			continue
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Logical{Op: op, Parts: kept}
}

// Field is a queryable handle on one column of a model. Handles are obtained
// from Model.Field and carry their owner, so aliased clones resolve to the
// aliased table.
type Field struct {
	owner  *Model
	column string
	spec   *FieldSpec
}

// Owner returns the model (possibly aliased) the handle belongs to.
func (f *Field) Owner() *Model { return f.owner }

// Column returns the storage column name.
func (f *Field) Column() string { return f.column }

// Spec returns the field specification, nil for bare-table fields.
func (f *Field) Spec() *FieldSpec { return f.spec }

// Ref returns the alias-qualified column reference.
func (f *Field) Ref() string {
	return f.owner.Alias() + "." + f.column
}

func (f *Field) String() string {
	return f.Ref()
}

// Eq compares for equality. A nil value compiles to IS NULL.
func (f *Field) Eq(v any) Expr { return Comparison{Field: f, Op: OpEq, Value: v} }

// Ne compares for inequality. A nil value compiles to IS NOT NULL.
func (f *Field) Ne(v any) Expr { return Comparison{Field: f, Op: OpNe, Value: v} }

func (f *Field) Gt(v any) Expr  { return Comparison{Field: f, Op: OpGt, Value: v} }
func (f *Field) Gte(v any) Expr { return Comparison{Field: f, Op: OpGte, Value: v} }
func (f *Field) Lt(v any) Expr  { return Comparison{Field: f, Op: OpLt, Value: v} }
func (f *Field) Lte(v any) Expr { return Comparison{Field: f, Op: OpLte, Value: v} }

// Like matches against an SQL pattern.
func (f *Field) Like(pattern string) Expr {
	return Comparison{Field: f, Op: OpLike, Value: pattern}
}

// Belongs tests membership in a set of values.
func (f *Field) Belongs(values ...any) Expr {
	return Belongs{Field: f, Values: values}
}

// Contains tests list-column membership.
func (f *Field) Contains(v any) Expr {
	return Contains{Field: f, Value: v}
}

// IsNull tests for NULL.
func (f *Field) IsNull() Expr { return NullCheck{Field: f} }

// NotNull tests for NOT NULL.
func (f *Field) NotNull() Expr { return NullCheck{Field: f, Not: true} }

// Asc orders by this field ascending.
func (f *Field) Asc() Order { return Order{Field: f} }

// Desc orders by this field descending.
func (f *Field) Desc() Order { return Order{Field: f, Desc: true} }

// Order is one ORDER BY term.
type Order struct {
	Field *Field
	Desc  bool
}

// Join is one LEFT JOIN clause: the (aliased) target model and its join
// condition.
type Join struct {
	Table *Model
	On    Expr
}

// Query is the compiled-down request handed to the executor. Joins carries
// explicit LEFT JOIN clauses; Extra carries additional FROM entries for
// predicates that reference tables beyond the root (inner joins folded into
// Where).
type Query struct {
	Table      *Model
	Where      Expr
	Projection []*Field
	Joins      []Join
	Extra      []*Model
	OrderBy    []Order
	GroupBy    []*Field
	Having     Expr
	Distinct   bool
	Limit      int64
	Offset     int64
}

// Tables returns the root plus every joined or folded-in model, in
// deterministic order.
func (q *Query) Tables() []*Model {
	out := []*Model{q.Table}
	for _, m := range q.Extra {
		out = append(out, m)
	}
	for _, j := range q.Joins {
		out = append(out, j.Table)
	}
	return out
}

// ExprTables collects the distinct models referenced by an expression, in
// first-mention order. The executor uses it to infer FROM entries for
// predicates that span tables.
func ExprTables(e Expr) []*Model {
	var out []*Model
	seen := make(map[string]bool)

	add := func(f *Field) {
		if f == nil {
			return
		}
		if alias := f.Owner().Alias(); !seen[alias] {
			seen[alias] = true
			out = append(out, f.Owner())
		}
	}

	var walk func(Expr)
	walk = func(e Expr) {
		switch expr := e.(type) {
		case Comparison:
			add(expr.Field)
			if f, ok := expr.Value.(*Field); ok {
				add(f)
			}
		case Logical:
			for _, p := range expr.Parts {
				walk(p)
			}
		case Belongs:
			add(expr.Field)
		case Contains:
			add(expr.Field)
			if f, ok := expr.Value.(*Field); ok {
				add(f)
			}
		case NullCheck:
			add(expr.Field)
		}
	}
	if e != nil {
		walk(e)
	}
	return out
}

// String renders a short diagnostic form, not valid SQL.
func (q *Query) String() string {
	return fmt.Sprintf("query{table=%s joins=%d limit=%d offset=%d}",
		q.Table.Name(), len(q.Joins)+len(q.Extra), q.Limit, q.Offset)
}
