package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashmay29/NL2SQL/internal/types"
)

// Diagnostic kinds reported by the validator.
const (
	KindEmptySelect     = "EmptySelect"
	KindUnknownTable    = "UnknownTable"
	KindUnknownColumn   = "UnknownColumn"
	KindAmbiguousColumn = "AmbiguousColumn"
	KindGroupByMissing  = "GroupByMissing"
	KindOrderByInvalid  = "OrderByInvalid"
	KindPredicateArity  = "PredicateArity"
	KindWindowMisplaced = "WindowMisplaced"
	KindCTEInvalid      = "CTEInvalid"
	KindNegativeBound   = "NegativeBound"
)

// Diagnostic describes one validation failure with the JSON-ish path of the
// offending element.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %s: %s", d.Kind, d.Path, d.Message)
}

// Validate checks a query against the schema and the IR invariants. An empty
// result means the query is safe to compile.
func Validate(schema *types.Schema, q *Query) []Diagnostic {
	v := &validator{schema: schema}
	v.validateQuery(q, "", nil)

	return v.diags
}

type validator struct {
	schema *types.Schema
	diags  []Diagnostic
}

// scope resolves table-ish names visible to a query: real tables, aliases,
// and CTE names.
type scope struct {
	// tables maps a visible name to the underlying schema table, or "" when
	// the name is a CTE (whose columns cannot be checked).
	tables map[string]string
	order  []string
}

func (s *scope) add(name, real string) {
	if name == "" {
		return
	}

	if _, exists := s.tables[name]; !exists {
		s.order = append(s.order, name)
	}

	s.tables[name] = real
}

func (v *validator) addDiag(kind, path, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
	})
}

// validateQuery walks one query level. outerCTEs carries the CTE names a
// nested query may legally reference (earlier siblings for CTE bodies, all of
// them for the main query and subqueries).
func (v *validator) validateQuery(q *Query, path string, outerCTEs map[string]bool) {
	if path == "" {
		path = "$"
	}

	if len(q.Select) == 0 {
		v.addDiag(KindEmptySelect, path+".select", "SELECT must project at least one expression")
	}

	// CTE names are unique and each body may only see earlier CTEs, which
	// rules out self-reference and cycles by construction.
	cteNames := make(map[string]bool, len(q.CTEs))

	for i, cte := range q.CTEs {
		ctePath := fmt.Sprintf("%s.ctes[%d]", path, i)

		if cte.Name == "" {
			v.addDiag(KindCTEInvalid, ctePath, "CTE is missing a name")
			continue
		}

		if cteNames[cte.Name] {
			v.addDiag(KindCTEInvalid, ctePath, "duplicate CTE name %q", cte.Name)
		}

		if cte.Query == nil {
			v.addDiag(KindCTEInvalid, ctePath, "CTE %q has no query", cte.Name)

			cteNames[cte.Name] = true

			continue
		}

		visible := make(map[string]bool, len(cteNames)+len(outerCTEs))
		for name := range outerCTEs {
			visible[name] = true
		}

		for name := range cteNames {
			visible[name] = true
		}

		v.validateQuery(cte.Query, ctePath+".query", visible)

		cteNames[cte.Name] = true
	}

	allCTEs := make(map[string]bool, len(cteNames)+len(outerCTEs))
	for name := range outerCTEs {
		allCTEs[name] = true
	}

	for name := range cteNames {
		allCTEs[name] = true
	}

	sc := v.buildScope(q, allCTEs, path)

	for i := range q.Select {
		v.validateExpression(&q.Select[i], sc, fmt.Sprintf("%s.select[%d]", path, i), allCTEs, true)
	}

	for i, join := range q.Joins {
		joinPath := fmt.Sprintf("%s.joins[%d]", path, i)

		for j := range join.On {
			v.validatePredicate(&q.Joins[i].On[j], sc, fmt.Sprintf("%s.on[%d]", joinPath, j), allCTEs, false)
		}
	}

	for i := range q.Where {
		v.validatePredicate(&q.Where[i], sc, fmt.Sprintf("%s.where[%d]", path, i), allCTEs, false)
	}

	for i, col := range q.GroupBy {
		v.validateColumnRef(col, sc, fmt.Sprintf("%s.group_by[%d]", path, i))
	}

	for i := range q.Having {
		v.validatePredicate(&q.Having[i], sc, fmt.Sprintf("%s.having[%d]", path, i), allCTEs, true)
	}

	v.validateGroupBy(q, path)
	v.validateOrderBy(q, sc, path)

	if q.Limit != nil && *q.Limit < 0 {
		v.addDiag(KindNegativeBound, path+".limit", "LIMIT must be non-negative, got %d", *q.Limit)
	}

	if q.Offset != nil && *q.Offset < 0 {
		v.addDiag(KindNegativeBound, path+".offset", "OFFSET must be non-negative, got %d", *q.Offset)
	}
}

func (v *validator) buildScope(q *Query, cteNames map[string]bool, path string) *scope {
	sc := &scope{tables: make(map[string]string)}

	resolve := func(table, alias, where string) {
		if table == "" {
			v.addDiag(KindUnknownTable, where, "missing table name")
			return
		}

		real := table

		if cteNames[table] {
			real = ""
		} else if _, ok := v.schema.Table(table); !ok {
			v.addDiag(KindUnknownTable, where, "table %q does not exist", table)
			return
		}

		sc.add(table, real)

		if alias != "" {
			sc.add(alias, real)
		}
	}

	resolve(q.FromTable, q.FromAlias, path+".from_table")

	for i, join := range q.Joins {
		resolve(join.Table, join.Alias, fmt.Sprintf("%s.joins[%d].table", path, i))
	}

	return sc
}

func (v *validator) validateExpression(e *Expression, sc *scope, path string, cteNames map[string]bool, windowAllowed bool) {
	switch e.Type {
	case ExprColumn:
		v.validateColumnRef(e.ColumnRef(), sc, path)
	case ExprLiteral, ExprList:
		for i := range e.Args {
			v.validateExpression(&e.Args[i], sc, fmt.Sprintf("%s.args[%d]", path, i), cteNames, false)
		}
	case ExprFunction, ExprAggregate:
		for i := range e.Args {
			v.validateExpression(&e.Args[i], sc, fmt.Sprintf("%s.args[%d]", path, i), cteNames, false)
		}
	case ExprWindow:
		if !windowAllowed {
			v.addDiag(KindWindowMisplaced, path, "window function %s is only allowed in SELECT and ORDER BY", e.Function)
		}

		if e.Window != nil {
			for i, col := range e.Window.PartitionBy {
				v.validateColumnRef(col, sc, fmt.Sprintf("%s.window.partition_by[%d]", path, i))
			}

			for i := range e.Window.OrderBy {
				v.validateExpression(&e.Window.OrderBy[i].Column, sc,
					fmt.Sprintf("%s.window.order_by[%d]", path, i), cteNames, false)
			}
		}

		for i := range e.Args {
			v.validateExpression(&e.Args[i], sc, fmt.Sprintf("%s.args[%d]", path, i), cteNames, false)
		}
	case ExprSubquery:
		if e.Subquery != nil {
			v.validateQuery(e.Subquery, path+".subquery", cteNames)
		}
	default:
		v.addDiag(KindUnknownColumn, path, "unknown expression type %q", e.Type)
	}
}

func (v *validator) validateColumnRef(ref string, sc *scope, path string) {
	if ref == "" {
		v.addDiag(KindUnknownColumn, path, "empty column reference")
		return
	}

	if ref == "*" {
		return
	}

	if table, column, found := strings.Cut(ref, "."); found {
		real, visible := sc.tables[table]
		if !visible {
			v.addDiag(KindUnknownTable, path, "table %q is not part of the query", table)
			return
		}

		// CTE columns are not in the schema; trust them.
		if real == "" || column == "*" {
			return
		}

		if !v.schema.HasColumn(real, column) {
			v.addDiag(KindUnknownColumn, path, "column %q does not exist in table %q", column, real)
		}

		return
	}

	// Unqualified reference: resolvable iff exactly one visible real table
	// has the column. A visible CTE makes the reference unverifiable, so it
	// passes.
	var foundIn []string

	hasCTE := false

	for _, name := range sc.order {
		real := sc.tables[name]
		if real == "" {
			hasCTE = true
			continue
		}

		if v.schema.HasColumn(real, ref) {
			foundIn = append(foundIn, name)
		}
	}

	switch {
	case len(foundIn) > 1:
		v.addDiag(KindAmbiguousColumn, path, "column %q exists in tables %v; qualify it", ref, foundIn)
	case len(foundIn) == 0 && !hasCTE:
		v.addDiag(KindUnknownColumn, path, "column %q not found in any table of the query", ref)
	}
}

func (v *validator) validatePredicate(p *Predicate, sc *scope, path string, cteNames map[string]bool, aggregatesAllowed bool) {
	if !aggregatesAllowed && p.Left.Type == ExprWindow {
		v.addDiag(KindWindowMisplaced, path+".left", "window function is not allowed here")
	}

	v.validateExpression(&p.Left, sc, path+".left", cteNames, false)

	if p.Right != nil {
		v.validateExpression(p.Right, sc, path+".right", cteNames, false)
	}

	switch p.Operator {
	case OpIsNull, OpIsNotNull:
		if p.Right != nil {
			v.addDiag(KindPredicateArity, path, "%s takes no right-hand side", p.Operator)
		}
	case OpBetween:
		if p.Right == nil || p.Right.Type != ExprList || len(p.Right.Args) != 2 {
			v.addDiag(KindPredicateArity, path, "BETWEEN requires exactly two right-hand literals")
			return
		}

		for i := range p.Right.Args {
			if p.Right.Args[i].Type != ExprLiteral {
				v.addDiag(KindPredicateArity, fmt.Sprintf("%s.right.args[%d]", path, i),
					"BETWEEN bounds must be literals")
			}
		}
	case OpIn, OpNotIn:
		if p.Right == nil || (p.Right.Type != ExprList && p.Right.Type != ExprSubquery) {
			v.addDiag(KindPredicateArity, path, "%s requires a list or subquery on the right", p.Operator)
		}
	default:
		if p.Right == nil {
			v.addDiag(KindPredicateArity, path, "operator %s requires a right-hand side", p.Operator)
		}
	}
}

// validateGroupBy enforces the aggregate projection rule: once any selected
// expression aggregates, every non-aggregate selected expression must appear
// in group_by. SELECT t.* together with an aggregate is rejected outright.
func (v *validator) validateGroupBy(q *Query, path string) {
	if !q.HasAggregate() {
		return
	}

	grouped := make(map[string]bool, len(q.GroupBy))
	for _, col := range q.GroupBy {
		grouped[col] = true
	}

	for i := range q.Select {
		e := &q.Select[i]
		if e.IsAggregate() || e.Type == ExprWindow || e.Type == ExprLiteral || e.Type == ExprSubquery {
			continue
		}

		ref := e.ColumnRef()
		selPath := fmt.Sprintf("%s.select[%d]", path, i)

		if ref == "*" || strings.HasSuffix(ref, ".*") {
			v.addDiag(KindGroupByMissing, selPath,
				"star projection cannot be combined with aggregates")
			continue
		}

		if !grouped[ref] && (e.Alias == "" || !grouped[e.Alias]) {
			v.addDiag(KindGroupByMissing, selPath,
				"non-aggregate column %q must appear in GROUP BY", ref)
		}
	}
}

// validateOrderBy enforces that each ordering key is a selected column, a
// select alias, a positional integer, or an aggregate that also appears in
// SELECT.
func (v *validator) validateOrderBy(q *Query, sc *scope, path string) {
	selectedCols := make(map[string]bool)
	selectedAliases := make(map[string]bool)
	selectedAggs := make(map[string]bool)

	starSelected := false

	for i := range q.Select {
		e := &q.Select[i]

		if e.Alias != "" {
			selectedAliases[e.Alias] = true
		}

		switch {
		case e.IsAggregate():
			selectedAggs[aggregateKey(e)] = true
		case e.Type == ExprColumn:
			ref := e.ColumnRef()
			selectedCols[ref] = true

			if ref == "*" || strings.HasSuffix(ref, ".*") {
				starSelected = true
			}
		}
	}

	for i := range q.OrderBy {
		key := &q.OrderBy[i].Column
		obPath := fmt.Sprintf("%s.order_by[%d]", path, i)

		switch key.Type {
		case ExprColumn:
			ref := key.ColumnRef()

			if _, err := strconv.Atoi(ref); err == nil {
				continue // positional
			}

			if selectedAliases[ref] {
				continue
			}

			if selectedCols[ref] || starSelected {
				v.validateColumnRef(ref, sc, obPath)
				continue
			}

			v.addDiag(KindOrderByInvalid, obPath,
				"ORDER BY key %q must appear in SELECT, be a select alias, or a position", ref)
		case ExprLiteral:
			// Positional or constant ordering.
		case ExprWindow:
			// Allowed in ORDER BY.
		default:
			if key.IsAggregate() {
				if !selectedAggs[aggregateKey(key)] && (key.Alias == "" || !selectedAliases[key.Alias]) {
					v.addDiag(KindOrderByInvalid, obPath,
						"aggregate %s in ORDER BY must also appear in SELECT", renderAggregate(key))
				}
			}
		}
	}
}

// aggregateKey canonicalizes an aggregate for SELECT/ORDER BY matching.
func aggregateKey(e *Expression) string {
	var sb strings.Builder

	sb.WriteString(strings.ToUpper(e.Function))
	sb.WriteByte('(')

	if e.Distinct {
		sb.WriteString("DISTINCT ")
	}

	for i := range e.Args {
		if i > 0 {
			sb.WriteByte(',')
		}

		arg := &e.Args[i]
		if arg.Type == ExprColumn {
			sb.WriteString(arg.ColumnRef())
		} else if arg.IsAggregate() || arg.Type == ExprFunction {
			sb.WriteString(aggregateKey(arg))
		} else {
			sb.WriteString(fmt.Sprint(arg.Value))
		}
	}

	sb.WriteByte(')')

	return sb.String()
}

func renderAggregate(e *Expression) string {
	return aggregateKey(e)
}
