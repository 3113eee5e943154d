// Package ir defines the typed intermediate representation of a SELECT
// query: the contract between the LLM caller and the SQL compiler. Raw LLM
// JSON is normalized by the sanitizer, checked by the validator, and compiled
// read-only; nothing mutates a query after validation.
package ir

// Expression type tags of the closed union.
const (
	ExprColumn    = "column"
	ExprLiteral   = "literal"
	ExprFunction  = "function"
	ExprAggregate = "aggregate"
	ExprWindow    = "window"
	ExprSubquery  = "subquery"
	// ExprList holds the right-hand side of IN and BETWEEN predicates.
	ExprList = "list"
)

// Join types.
const (
	JoinInner = "INNER"
	JoinLeft  = "LEFT"
	JoinRight = "RIGHT"
	JoinFull  = "FULL"
	JoinCross = "CROSS"
)

// Order directions.
const (
	Asc  = "ASC"
	Desc = "DESC"
)

// Predicate operators.
const (
	OpEq        = "="
	OpNe        = "!="
	OpLt        = "<"
	OpLe        = "<="
	OpGt        = ">"
	OpGe        = ">="
	OpIn        = "IN"
	OpNotIn     = "NOT IN"
	OpLike      = "LIKE"
	OpNotLike   = "NOT LIKE"
	OpBetween   = "BETWEEN"
	OpIsNull    = "IS NULL"
	OpIsNotNull = "IS NOT NULL"
)

// Expression is one node of the expression union. Type selects the variant:
// column and literal use Value; function, aggregate, and window use Function
// and Args; subquery uses Subquery; list uses Args.
type Expression struct {
	Type     string       `json:"type"`
	Value    any          `json:"value,omitempty"`
	Alias    string       `json:"alias,omitempty"`
	Function string       `json:"function,omitempty"`
	Distinct bool         `json:"distinct,omitempty"`
	Args     []Expression `json:"args,omitempty"`
	Window   *WindowSpec  `json:"window,omitempty"`
	Subquery *Query       `json:"subquery,omitempty"`
}

// ColumnRef returns the column reference string of a column expression.
func (e *Expression) ColumnRef() string {
	s, _ := e.Value.(string)
	return s
}

// IsAggregate reports whether the expression is an aggregate, directly or
// through function arguments.
func (e *Expression) IsAggregate() bool {
	if e.Type == ExprAggregate {
		return true
	}

	if e.Type == ExprFunction {
		for i := range e.Args {
			if e.Args[i].IsAggregate() {
				return true
			}
		}
	}

	return false
}

// WindowSpec describes the OVER clause of a window expression.
type WindowSpec struct {
	PartitionBy []string  `json:"partition_by,omitempty"`
	OrderBy     []OrderBy `json:"order_by,omitempty"`
}

// Predicate is one conjunct of a WHERE, HAVING, or ON clause. Conjunction
// joins it to the preceding predicate and defaults to AND.
type Predicate struct {
	Left        Expression  `json:"left"`
	Operator    string      `json:"operator"`
	Right       *Expression `json:"right,omitempty"`
	Conjunction string      `json:"conjunction,omitempty"`
}

// Join is one join clause.
type Join struct {
	Type  string      `json:"type"`
	Table string      `json:"table"`
	Alias string      `json:"alias,omitempty"`
	On    []Predicate `json:"on,omitempty"`
}

// OrderBy is one ordering key.
type OrderBy struct {
	Column    Expression `json:"column"`
	Direction string     `json:"direction"`
}

// CTE is a named subquery visible to the main query and to later CTEs.
type CTE struct {
	Name  string `json:"name"`
	Query *Query `json:"query"`
}

// Query is the IR of a complete SELECT statement.
type Query struct {
	CTEs []CTE `json:"ctes,omitempty"`

	Select   []Expression `json:"select"`
	Distinct bool         `json:"distinct,omitempty"`

	FromTable string `json:"from_table"`
	FromAlias string `json:"from_alias,omitempty"`

	Joins   []Join      `json:"joins,omitempty"`
	Where   []Predicate `json:"where,omitempty"`
	GroupBy []string    `json:"group_by,omitempty"`
	Having  []Predicate `json:"having,omitempty"`
	OrderBy []OrderBy   `json:"order_by,omitempty"`

	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`

	Confidence  float64  `json:"confidence"`
	Ambiguities []string `json:"ambiguities,omitempty"`
	Questions   []string `json:"questions,omitempty"`
}

// HasAggregate reports whether any selected expression aggregates.
func (q *Query) HasAggregate() bool {
	for i := range q.Select {
		if q.Select[i].IsAggregate() {
			return true
		}
	}

	return false
}

// Tables returns the from table plus all join targets, in order.
func (q *Query) Tables() []string {
	out := []string{q.FromTable}
	for _, j := range q.Joins {
		out = append(out, j.Table)
	}

	return out
}

// Column constructs a column expression.
func Column(ref string) Expression {
	return Expression{Type: ExprColumn, Value: ref}
}

// Literal constructs a literal expression.
func Literal(v any) Expression {
	return Expression{Type: ExprLiteral, Value: v}
}

// Aggregate constructs an aggregate expression.
func Aggregate(name string, distinct bool, args ...Expression) Expression {
	return Expression{Type: ExprAggregate, Function: name, Distinct: distinct, Args: args}
}

// CountStar is the canonical COUNT(*) encoding.
func CountStar() Expression {
	return Aggregate("COUNT", false, Column("*"))
}

// IntPtr boxes an int for the optional Limit and Offset fields.
func IntPtr(v int) *int {
	return &v
}
