package runtime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// compiler accumulates one statement's text and positional arguments.
type compiler struct {
	sb   strings.Builder
	args []any
}

func (c *compiler) placeholder(v any) string {
	c.args = append(c.args, v)
	return "$" + strconv.Itoa(len(c.args))
}

func (c *compiler) write(s string) {
	c.sb.WriteString(s)
}

// tableRef renders a FROM entry, aliased when the model carries an alias.
func tableRef(m *schema.Model) string {
	if m.Alias() != m.Name() {
		return m.Name() + " AS " + m.Alias()
	}
	return m.Name()
}

// columnRef renders one projection term. The star column selects the whole
// row as a single jsonb value, used for targets without a declared field
// list.
func columnRef(f *schema.Field) string {
	if f.Column() == "*" {
		return fmt.Sprintf("to_jsonb(%s) AS %q", f.Owner().Alias(), f.Owner().Alias()+".*")
	}
	return fmt.Sprintf("%s AS %q", f.Ref(), f.Ref())
}

// CompileSelect renders a query AST into one SELECT statement. Columns are
// labeled "alias.column" so results can be regrouped by table.
func CompileSelect(q *schema.Query) (string, []any, error) {
	if q.Table == nil {
		return "", nil, errors.New("query has no root table")
	}

	c := &compiler{}
	c.write("SELECT ")
	if q.Distinct {
		c.write("DISTINCT ")
	}

	projection := q.Projection
	if len(projection) == 0 {
		projection = allFields(q.Table)
	}
	terms := make([]string, len(projection))
	for i, f := range projection {
		terms[i] = columnRef(f)
	}
	c.write(strings.Join(terms, ", "))

	c.write(" FROM ")
	from := []string{tableRef(q.Table)}
	for _, extra := range q.Extra {
		from = append(from, tableRef(extra))
	}
	c.write(strings.Join(from, ", "))

	for _, join := range q.Joins {
		c.write(" LEFT JOIN ")
		c.write(tableRef(join.Table))
		c.write(" ON ")
		on, err := compileExpr(c, join.On)
		if err != nil {
			return "", nil, err
		}
		c.write(on)
	}

	if q.Where != nil {
		where, err := compileExpr(c, q.Where)
		if err != nil {
			return "", nil, err
		}
		c.write(" WHERE ")
		c.write(where)
	}

	if len(q.GroupBy) > 0 {
		refs := make([]string, len(q.GroupBy))
		for i, f := range q.GroupBy {
			refs[i] = f.Ref()
		}
		c.write(" GROUP BY ")
		c.write(strings.Join(refs, ", "))
	}

	if q.Having != nil {
		having, err := compileExpr(c, q.Having)
		if err != nil {
			return "", nil, err
		}
		c.write(" HAVING ")
		c.write(having)
	}

	orderBy := q.OrderBy
	if len(orderBy) == 0 && q.Limit > 0 {
		// A window without explicit ordering is nondeterministic; fall
		// back to id order.
		orderBy = []schema.Order{q.Table.ID().Asc()}
	}
	if len(orderBy) > 0 {
		terms := make([]string, len(orderBy))
		for i, o := range orderBy {
			terms[i] = o.Field.Ref()
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		c.write(" ORDER BY ")
		c.write(strings.Join(terms, ", "))
	}

	if q.Limit > 0 {
		c.write(" LIMIT ")
		c.write(strconv.FormatInt(q.Limit, 10))
	}
	if q.Offset > 0 {
		c.write(" OFFSET ")
		c.write(strconv.FormatInt(q.Offset, 10))
	}

	return c.sb.String(), c.args, nil
}

// CompileCount renders the counting form of a query: predicate and FROM
// entries only. With joined tables in play the count collapses to distinct
// root ids so multi-valued matches do not inflate it.
func CompileCount(q *schema.Query) (string, []any, error) {
	if q.Table == nil {
		return "", nil, errors.New("query has no root table")
	}

	c := &compiler{}
	joined := len(q.Extra)+len(q.Joins) > 0
	if joined {
		c.write("SELECT COUNT(DISTINCT " + q.Table.ID().Ref() + ")")
	} else {
		c.write("SELECT COUNT(*)")
	}

	c.write(" FROM ")
	from := []string{tableRef(q.Table)}
	for _, extra := range q.Extra {
		from = append(from, tableRef(extra))
	}
	c.write(strings.Join(from, ", "))

	for _, join := range q.Joins {
		c.write(" LEFT JOIN ")
		c.write(tableRef(join.Table))
		c.write(" ON ")
		on, err := compileExpr(c, join.On)
		if err != nil {
			return "", nil, err
		}
		c.write(on)
	}

	if q.Where != nil {
		where, err := compileExpr(c, q.Where)
		if err != nil {
			return "", nil, err
		}
		c.write(" WHERE ")
		c.write(where)
	}

	return c.sb.String(), c.args, nil
}

// CompileInsert renders an insert, field names sorted for deterministic
// output.
func CompileInsert(table string, fields map[string]any) (string, []any) {
	if len(fields) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES RETURNING *", nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &compiler{}
	placeholders := make([]string, len(names))
	for i, name := range names {
		placeholders[i] = c.placeholder(fields[name])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return sql, c.args
}

// CompileUpdate renders a predicate-scoped update returning the new rows.
func CompileUpdate(table string, pred schema.Expr, fields map[string]any) (string, []any, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &compiler{}
	assignments := make([]string, len(names))
	for i, name := range names {
		assignments[i] = name + " = " + c.placeholder(fields[name])
	}

	c.write("UPDATE " + table + " SET " + strings.Join(assignments, ", "))
	if pred != nil {
		where, err := compileExpr(c, pred)
		if err != nil {
			return "", nil, err
		}
		c.write(" WHERE " + where)
	}
	c.write(" RETURNING *")
	return c.sb.String(), c.args, nil
}

// CompileDelete renders a predicate-scoped delete returning removed ids.
func CompileDelete(table string, pred schema.Expr) (string, []any, error) {
	c := &compiler{}
	c.write("DELETE FROM " + table)
	if pred != nil {
		where, err := compileExpr(c, pred)
		if err != nil {
			return "", nil, err
		}
		c.write(" WHERE " + where)
	}
	c.write(" RETURNING " + schema.IDColumn)
	return c.sb.String(), c.args, nil
}

func compileExpr(c *compiler, e schema.Expr) (string, error) {
	switch expr := e.(type) {
	case schema.Comparison:
		return compileComparison(c, expr)

	case schema.Logical:
		parts := make([]string, len(expr.Parts))
		for i, p := range expr.Parts {
			s, err := compileExpr(c, p)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, " "+expr.Op+" ") + ")", nil

	case schema.Belongs:
		if len(expr.Values) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(expr.Values))
		for i, v := range expr.Values {
			placeholders[i] = c.placeholder(v)
		}
		return expr.Field.Ref() + " IN (" + strings.Join(placeholders, ", ") + ")", nil

	case schema.Contains:
		if f, ok := expr.Value.(*schema.Field); ok {
			return f.Ref() + " = ANY(" + expr.Field.Ref() + ")", nil
		}
		return c.placeholder(expr.Value) + " = ANY(" + expr.Field.Ref() + ")", nil

	case schema.NullCheck:
		if expr.Not {
			return expr.Field.Ref() + " IS NOT NULL", nil
		}
		return expr.Field.Ref() + " IS NULL", nil

	case schema.Raw:
		return expr.SQL, nil
	}
	return "", errors.Newf("cannot compile expression %T", e)
}

func compileComparison(c *compiler, expr schema.Comparison) (string, error) {
	left := expr.Field.Ref()

	if expr.Value == nil {
		switch expr.Op {
		case schema.OpEq:
			return left + " IS NULL", nil
		case schema.OpNe:
			return left + " IS NOT NULL", nil
		}
		return "", errors.Newf("cannot compare %s against NULL with %s", left, expr.Op)
	}

	if f, ok := expr.Value.(*schema.Field); ok {
		return left + " " + expr.Op + " " + f.Ref(), nil
	}
	return left + " " + expr.Op + " " + c.placeholder(expr.Value), nil
}

// allFields projects every declared column, or the whole row for tables
// without declarations.
func allFields(m *schema.Model) []*schema.Field {
	if m.Bare() {
		return []*schema.Field{m.Field("*")}
	}
	fields := make([]*schema.Field, 0, len(m.Fields()))
	for _, spec := range m.Fields() {
		fields = append(fields, m.Field(spec.Name))
	}
	return fields
}

// CompileCreateTable renders the DDL for one table.
func CompileCreateTable(name string, cols []schema.ColumnSpec) (string, error) {
	if len(cols) == 0 {
		return "", errors.Newf("table %s has no columns", name)
	}

	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		ddl, err := ddlColumn(col)
		if err != nil {
			return "", errors.Wrapf(err, "table %s", name)
		}
		defs = append(defs, ddl)
	}
	return "CREATE TABLE " + name + " (\n    " + strings.Join(defs, ",\n    ") + "\n)", nil
}

func ddlColumn(col schema.ColumnSpec) (string, error) {
	if col.Type == schema.TypeID {
		return col.Name + " BIGSERIAL PRIMARY KEY", nil
	}

	sqlType, err := ddlType(col.Type)
	if err != nil {
		return "", errors.Wrapf(err, "column %s", col.Name)
	}

	def := col.Name + " " + sqlType
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.Unique {
		def += " UNIQUE"
	}
	if col.Default != "" {
		def += " DEFAULT " + col.Default
	}
	return def, nil
}

var ddlScalars = map[string]string{
	schema.TypeString:   "TEXT",
	schema.TypeInteger:  "BIGINT",
	schema.TypeBoolean:  "BOOLEAN",
	schema.TypeBlob:     "BYTEA",
	schema.TypeDouble:   "DOUBLE PRECISION",
	schema.TypeJSON:     "JSONB",
	schema.TypeDate:     "DATE",
	schema.TypeTime:     "TIME",
	schema.TypeDatetime: "TIMESTAMPTZ",
}

// ddlType translates a storage tag into its PostgreSQL type. Tags it does
// not recognize pass through verbatim, so explicit type() overrides can name
// any SQL type directly.
func ddlType(tag string) (string, error) {
	if sqlType, ok := ddlScalars[tag]; ok {
		return sqlType, nil
	}

	switch {
	case strings.HasPrefix(tag, "decimal(") && strings.HasSuffix(tag, ")"):
		return "NUMERIC" + tag[len("decimal"):], nil

	case strings.HasPrefix(tag, "reference "):
		target := strings.TrimPrefix(tag, "reference ")
		return fmt.Sprintf("BIGINT REFERENCES %s(%s) ON DELETE CASCADE", target, schema.IDColumn), nil

	case strings.HasPrefix(tag, "list:reference "):
		return "BIGINT[]", nil

	case strings.HasPrefix(tag, "list:"):
		inner, err := ddlType(strings.TrimPrefix(tag, "list:"))
		if err != nil {
			return "", err
		}
		return inner + "[]", nil
	}

	return tag, nil
}
