package analysis

import (
	"fmt"
	"strings"

	"github.com/ashmay29/NL2SQL/internal/ir"
	"github.com/ashmay29/NL2SQL/internal/types"
)

// Hint identifiers attached by the corrector.
const (
	HintLimitWithoutOrderBy = "limit-without-order-by"
	HintAmbiguousColumns    = "ambiguous-columns"
	HintAggregateGroupBy    = "aggregate-without-group-by"
	HintCartesianProduct    = "cartesian-product"
)

// Hint is one corrective observation. The corrector only annotates; it never
// rewrites SQL or blocks the response.
type Hint struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Check scans the compiled SQL and its IR for high-signal issues.
func Check(sql string, q *ir.Query, schema *types.Schema) []Hint {
	var hints []Hint

	if q.Limit != nil && len(q.OrderBy) == 0 {
		hints = append(hints, Hint{
			Kind:    HintLimitWithoutOrderBy,
			Message: "LIMIT without ORDER BY may return a different subset on every execution; add an ORDER BY for deterministic results",
		})
	}

	if len(q.Joins) > 0 {
		if cols := ambiguousUnqualified(sql, q, schema); len(cols) > 0 {
			hints = append(hints, Hint{
				Kind: HintAmbiguousColumns,
				Message: fmt.Sprintf("columns %s exist in more than one joined table; qualify them with a table name",
					strings.Join(cols, ", ")),
			})
		}
	}

	// Defense in depth behind the validator.
	if q.HasAggregate() && len(q.GroupBy) == 0 {
		for i := range q.Select {
			e := &q.Select[i]
			if !e.IsAggregate() && e.Type == ir.ExprColumn {
				hints = append(hints, Hint{
					Kind:    HintAggregateGroupBy,
					Message: fmt.Sprintf("non-aggregate column %q selected alongside aggregates without GROUP BY", e.ColumnRef()),
				})

				break
			}
		}
	}

	for i := range q.Joins {
		join := &q.Joins[i]
		if join.Type != ir.JoinCross && len(join.On) == 0 {
			hints = append(hints, Hint{
				Kind:    HintCartesianProduct,
				Message: fmt.Sprintf("join on %q has no ON condition and will produce a cartesian product", join.Table),
			})
		}
	}

	return hints
}

// ambiguousUnqualified finds column names shared between the query's tables
// that the SQL references without a table qualifier.
func ambiguousUnqualified(sql string, q *ir.Query, schema *types.Schema) []string {
	count := make(map[string]int)

	for _, tableName := range q.Tables() {
		table, ok := schema.Table(tableName)
		if !ok {
			continue
		}

		for _, col := range table.Columns {
			count[col.Name]++
		}
	}

	lower := strings.ToLower(sql)

	var out []string

	for name, n := range count {
		if n < 2 {
			continue
		}

		if hasUnqualified(lower, strings.ToLower(name)) {
			out = append(out, name)
		}
	}

	sortStrings(out)

	return out
}

// hasUnqualified reports whether the column name occurs in the SQL without a
// table qualifier. Quoted and bare occurrences count; anything preceded by a
// dot (or sitting inside a larger identifier) does not.
func hasUnqualified(sql, name string) bool {
	for _, needle := range []string{"`" + name + "`", `"` + name + `"`, name} {
		idx := 0

		for {
			i := strings.Index(sql[idx:], needle)
			if i < 0 {
				break
			}

			pos := idx + i

			before := byte(' ')
			if pos > 0 {
				before = sql[pos-1]
			}

			after := byte(' ')
			if end := pos + len(needle); end < len(sql) {
				after = sql[end]
			}

			if before != '.' && !isIdentByte(before) && !isIdentByte(after) {
				return true
			}

			idx = pos + 1
		}
	}

	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '`' || b == '"'
}

func sortStrings(s []string) {
	for i := range len(s) - 1 {
		for j := i + 1; j < len(s); j++ {
			if s[j] < s[i] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
}
