package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect controls identifier quoting during compilation.
type Dialect struct {
	Name  string
	Quote byte
}

// DialectMySQL quotes identifiers with backticks.
var DialectMySQL = Dialect{Name: "mysql", Quote: '`'}

// DialectANSI quotes identifiers with double quotes.
var DialectANSI = Dialect{Name: "ansi", Quote: '"'}

// Compiled is the output of Compile: parameterized SQL plus the ordered
// binding map. Names lists the placeholders in encounter order.
type Compiled struct {
	SQL    string
	Params map[string]any
	Names  []string
}

// Compile deterministically renders a validated query. Every literal value
// goes through the binding map as :p_k; the SQL string itself never carries a
// value from the IR. Compile performs no I/O and does not mutate the query.
func Compile(q *Query, dialect Dialect) (*Compiled, error) {
	c := &compiler{
		dialect: dialect,
		params:  make(map[string]any),
	}

	sql, err := c.query(q)
	if err != nil {
		return nil, err
	}

	return &Compiled{SQL: sql, Params: c.params, Names: c.names}, nil
}

type compiler struct {
	dialect Dialect
	params  map[string]any
	names   []string
}

// bind registers a literal value and returns its placeholder.
func (c *compiler) bind(value any) string {
	name := "p_" + strconv.Itoa(len(c.names))
	c.params[name] = value
	c.names = append(c.names, name)

	return ":" + name
}

func (c *compiler) query(q *Query) (string, error) {
	var parts []string

	if len(q.CTEs) > 0 {
		cteSQLs := make([]string, 0, len(q.CTEs))

		for i := range q.CTEs {
			cte := &q.CTEs[i]

			body, err := c.query(cte.Query)
			if err != nil {
				return "", fmt.Errorf("CTE %q: %w", cte.Name, err)
			}

			cteSQLs = append(cteSQLs, fmt.Sprintf("%s AS (%s)", c.quoteIdent(cte.Name), body))
		}

		parts = append(parts, "WITH "+strings.Join(cteSQLs, ", "))
	}

	selectItems := make([]string, 0, len(q.Select))

	for i := range q.Select {
		item, err := c.expression(&q.Select[i], true)
		if err != nil {
			return "", err
		}

		selectItems = append(selectItems, item)
	}

	selectClause := "SELECT "
	if q.Distinct {
		selectClause += "DISTINCT "
	}

	parts = append(parts, selectClause+strings.Join(selectItems, ", "))

	from := "FROM " + c.quoteRef(q.FromTable)
	if q.FromAlias != "" {
		from += " AS " + c.quoteIdent(q.FromAlias)
	}

	parts = append(parts, from)

	for i := range q.Joins {
		join := &q.Joins[i]

		clause := join.Type + " JOIN " + c.quoteRef(join.Table)
		if join.Alias != "" {
			clause += " AS " + c.quoteIdent(join.Alias)
		}

		if join.Type != JoinCross {
			on, err := c.predicates(join.On)
			if err != nil {
				return "", err
			}

			if on != "" {
				clause += " ON " + on
			}
		}

		parts = append(parts, clause)
	}

	if len(q.Where) > 0 {
		where, err := c.predicates(q.Where)
		if err != nil {
			return "", err
		}

		parts = append(parts, "WHERE "+where)
	}

	if len(q.GroupBy) > 0 {
		cols := make([]string, 0, len(q.GroupBy))
		for _, col := range q.GroupBy {
			cols = append(cols, c.quoteRef(col))
		}

		parts = append(parts, "GROUP BY "+strings.Join(cols, ", "))
	}

	if len(q.Having) > 0 {
		having, err := c.predicates(q.Having)
		if err != nil {
			return "", err
		}

		parts = append(parts, "HAVING "+having)
	}

	if len(q.OrderBy) > 0 {
		keys := make([]string, 0, len(q.OrderBy))

		for i := range q.OrderBy {
			ob := &q.OrderBy[i]

			key, err := c.orderKey(&ob.Column)
			if err != nil {
				return "", err
			}

			dir := ob.Direction
			if dir == "" {
				dir = Asc
			}

			keys = append(keys, key+" "+dir)
		}

		parts = append(parts, "ORDER BY "+strings.Join(keys, ", "))
	}

	if q.Limit != nil {
		parts = append(parts, "LIMIT "+strconv.Itoa(*q.Limit))

		if q.Offset != nil {
			parts = append(parts, "OFFSET "+strconv.Itoa(*q.Offset))
		}
	}

	return strings.Join(parts, " "), nil
}

// orderKey renders an ORDER BY key: aggregate expressions render as the
// expression itself, never as a quoted identifier.
func (c *compiler) orderKey(e *Expression) (string, error) {
	switch e.Type {
	case ExprColumn:
		ref := e.ColumnRef()
		if _, err := strconv.Atoi(ref); err == nil {
			return ref, nil
		}

		return c.quoteRef(ref), nil
	default:
		return c.expression(e, false)
	}
}

func (c *compiler) expression(e *Expression, withAlias bool) (string, error) {
	var (
		sql string
		err error
	)

	switch e.Type {
	case ExprColumn:
		sql = c.quoteRef(e.ColumnRef())
	case ExprLiteral:
		sql = c.bind(e.Value)
	case ExprFunction, ExprAggregate:
		sql, err = c.call(e)
	case ExprWindow:
		sql, err = c.window(e)
	case ExprSubquery:
		if e.Subquery == nil {
			return "", fmt.Errorf("subquery expression has no query")
		}

		inner, qErr := c.query(e.Subquery)
		if qErr != nil {
			return "", qErr
		}

		sql = "(" + inner + ")"
	case ExprList:
		items := make([]string, 0, len(e.Args))

		for i := range e.Args {
			item, aErr := c.expression(&e.Args[i], false)
			if aErr != nil {
				return "", aErr
			}

			items = append(items, item)
		}

		sql = "(" + strings.Join(items, ", ") + ")"
	default:
		return "", fmt.Errorf("unsupported expression type %q", e.Type)
	}

	if err != nil {
		return "", err
	}

	if withAlias && e.Alias != "" {
		sql += " AS " + c.quoteIdent(e.Alias)
	}

	return sql, nil
}

func (c *compiler) call(e *Expression) (string, error) {
	name := strings.ToUpper(e.Function)
	if name == "" {
		return "", fmt.Errorf("%s expression has no function name", e.Type)
	}

	// COUNT(*) renders bare.
	if name == "COUNT" && !e.Distinct && len(e.Args) == 1 &&
		e.Args[0].Type == ExprColumn && e.Args[0].ColumnRef() == "*" {
		return "COUNT(*)", nil
	}

	args := make([]string, 0, len(e.Args))

	for i := range e.Args {
		arg, err := c.expression(&e.Args[i], false)
		if err != nil {
			return "", err
		}

		args = append(args, arg)
	}

	inner := strings.Join(args, ", ")
	if e.Distinct {
		inner = "DISTINCT " + inner
	}

	return name + "(" + inner + ")", nil
}

func (c *compiler) window(e *Expression) (string, error) {
	call, err := c.call(e)
	if err != nil {
		return "", err
	}

	var over []string

	if e.Window != nil {
		if len(e.Window.PartitionBy) > 0 {
			cols := make([]string, 0, len(e.Window.PartitionBy))
			for _, col := range e.Window.PartitionBy {
				cols = append(cols, c.quoteRef(col))
			}

			over = append(over, "PARTITION BY "+strings.Join(cols, ", "))
		}

		if len(e.Window.OrderBy) > 0 {
			keys := make([]string, 0, len(e.Window.OrderBy))

			for i := range e.Window.OrderBy {
				ob := &e.Window.OrderBy[i]

				key, kErr := c.orderKey(&ob.Column)
				if kErr != nil {
					return "", kErr
				}

				dir := ob.Direction
				if dir == "" {
					dir = Asc
				}

				keys = append(keys, key+" "+dir)
			}

			over = append(over, "ORDER BY "+strings.Join(keys, ", "))
		}
	}

	return call + " OVER (" + strings.Join(over, " ") + ")", nil
}

func (c *compiler) predicates(preds []Predicate) (string, error) {
	var sb strings.Builder

	for i := range preds {
		p := &preds[i]

		if i > 0 {
			conj := p.Conjunction
			if conj == "" {
				conj = "AND"
			}

			sb.WriteString(" " + conj + " ")
		}

		left, err := c.expression(&p.Left, false)
		if err != nil {
			return "", err
		}

		sb.WriteString(left)

		switch p.Operator {
		case OpIsNull, OpIsNotNull:
			sb.WriteString(" " + p.Operator)
		case OpBetween:
			if p.Right == nil || len(p.Right.Args) != 2 {
				return "", fmt.Errorf("BETWEEN predicate is missing its bounds")
			}

			low, err := c.expression(&p.Right.Args[0], false)
			if err != nil {
				return "", err
			}

			high, err := c.expression(&p.Right.Args[1], false)
			if err != nil {
				return "", err
			}

			sb.WriteString(" BETWEEN " + low + " AND " + high)
		default:
			if p.Right == nil {
				return "", fmt.Errorf("operator %s is missing its right-hand side", p.Operator)
			}

			right, err := c.expression(p.Right, false)
			if err != nil {
				return "", err
			}

			sb.WriteString(" " + p.Operator + " " + right)
		}
	}

	return sb.String(), nil
}

// quoteRef quotes a possibly dotted reference. Star projections render
// unquoted.
func (c *compiler) quoteRef(ref string) string {
	if ref == "*" {
		return "*"
	}

	if table, column, found := strings.Cut(ref, "."); found {
		if column == "*" {
			return c.quoteIdent(table) + ".*"
		}

		return c.quoteIdent(table) + "." + c.quoteIdent(column)
	}

	return c.quoteIdent(ref)
}

func (c *compiler) quoteIdent(ident string) string {
	q := string(c.dialect.Quote)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
