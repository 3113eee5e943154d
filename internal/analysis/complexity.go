// Package analysis derives post-compilation signals from a validated query:
// a structural complexity classification and corrective hints.
package analysis

import (
	"fmt"

	"github.com/ashmay29/NL2SQL/internal/ir"
)

// Complexity levels.
const (
	LevelSimple      = "simple"
	LevelModerate    = "moderate"
	LevelComplex     = "complex"
	LevelVeryComplex = "very_complex"
)

// Structural feature weights.
const (
	weightJoin     = 2
	weightAgg      = 5
	weightCTE      = 5
	weightSubquery = 10
	weightGroupBy  = 1
	weightHaving   = 3
)

// Classification thresholds on the cumulative score.
const (
	thresholdModerate    = 10
	thresholdComplex     = 25
	thresholdVeryComplex = 50
)

// Metrics is the complexity analysis result.
type Metrics struct {
	Score    int            `json:"score"`
	Level    string         `json:"level"`
	Factors  map[string]int `json:"factors"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Analyze classifies a validated query by counting structural features. It
// never fails; an empty query scores simple.
func Analyze(q *ir.Query) Metrics {
	factors := map[string]int{}
	score := 0

	var warnings []string

	if n := len(q.Joins); n > 0 {
		factors["joins"] = n
		score += n * weightJoin
	}

	if q.HasAggregate() {
		factors["aggregates"] = 1
		score += weightAgg
	}

	if n := len(q.CTEs); n > 0 {
		factors["ctes"] = n
		score += n * weightCTE
	}

	if n := countSubqueries(q); n > 0 {
		factors["subqueries"] = n
		score += weightSubquery
	}

	if n := len(q.GroupBy); n > 0 {
		factors["group_by"] = n
		score += n * weightGroupBy
	}

	if len(q.Having) > 0 {
		factors["having"] = 1
		score += weightHaving
	}

	numTables := len(q.Tables())
	if numTables >= 4 {
		warnings = append(warnings, fmt.Sprintf("query touches %d tables; consider narrowing it", numTables))
	}

	if len(q.CTEs) >= 2 {
		warnings = append(warnings, fmt.Sprintf("query uses %d CTEs; it may be hard to optimize", len(q.CTEs)))
	}

	level := LevelSimple

	switch {
	case score >= thresholdVeryComplex:
		level = LevelVeryComplex
	case score >= thresholdComplex:
		level = LevelComplex
	case score >= thresholdModerate:
		level = LevelModerate
	}

	return Metrics{Score: score, Level: level, Factors: factors, Warnings: warnings}
}

// countSubqueries counts subquery expressions in SELECT and WHERE.
func countSubqueries(q *ir.Query) int {
	n := 0

	for i := range q.Select {
		n += subqueriesInExpression(&q.Select[i])
	}

	for i := range q.Where {
		n += subqueriesInExpression(&q.Where[i].Left)

		if q.Where[i].Right != nil {
			n += subqueriesInExpression(q.Where[i].Right)
		}
	}

	return n
}

func subqueriesInExpression(e *ir.Expression) int {
	n := 0

	if e.Type == ir.ExprSubquery {
		n++
	}

	for i := range e.Args {
		n += subqueriesInExpression(&e.Args[i])
	}

	return n
}

// Suggestions derives optimization hints from the metrics.
func Suggestions(q *ir.Query, m Metrics) []string {
	var out []string

	if len(q.Tables()) > 2 {
		out = append(out, "Consider adding indexes on JOIN columns for better performance")
	}

	if q.HasAggregate() && len(q.Tables()) > 3 {
		out = append(out, "For frequently run aggregations, consider a materialized view")
	}

	if m.Level == LevelVeryComplex {
		out = append(out, "Consider breaking this query into smaller, simpler queries")
	}

	return out
}
