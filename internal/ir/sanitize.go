package ir

import (
	"regexp"
	"strconv"
	"strings"
)

// Key-rename tables: known provider drift, applied before any structural
// coercion. Adding a new drift variant means adding a row here.
var (
	cteRenames = map[string]string{
		"cte_name":       "name",
		"cte_query":      "query",
		"cte_definition": "query",
		"definition":     "query",
	}

	joinRenames = map[string]string{
		"join_type":      "type",
		"target_table":   "table",
		"join_table":     "table",
		"condition":      "on",
		"join_condition": "on",
	}

	orderByRenames = map[string]string{
		"field": "column",
		"col":   "column",
		"value": "column",
	}
)

var (
	aggregateNames = map[string]bool{
		"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
		"GROUP_CONCAT": true, "STDDEV": true, "VARIANCE": true,
	}

	callPattern   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*(.*?)\s*\)$`)
	onOperators   = []string{">=", "<=", "!=", "=", ">", "<"}
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Sanitize rewrites a raw LLM JSON object into the shape the typed IR
// expects, without changing meaning. It is best-effort and idempotent:
// structures it does not recognize pass through for the validator to reject.
func Sanitize(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}

	out := deepCopy(raw).(map[string]any)
	sanitizeQuery(out)

	return out
}

func sanitizeQuery(q map[string]any) {
	if sel, ok := q["select"].([]any); ok {
		for i, item := range sel {
			sel[i] = sanitizeSelectItem(item)
		}
	}

	if ctes, ok := q["ctes"].([]any); ok {
		for _, item := range ctes {
			cte, ok := item.(map[string]any)
			if !ok {
				continue
			}

			renameKeys(cte, cteRenames)

			if sub, ok := cte["query"].(map[string]any); ok {
				sanitizeQuery(sub)
			}
		}
	}

	if joins, ok := q["joins"].([]any); ok {
		for _, item := range joins {
			join, ok := item.(map[string]any)
			if !ok {
				continue
			}

			sanitizeJoin(join)
		}
	}

	if order, ok := q["order_by"].([]any); ok {
		for i, item := range order {
			order[i] = sanitizeOrderBy(item)
		}
	}

	for _, clause := range []string{"where", "having"} {
		if preds, ok := q[clause].([]any); ok {
			for _, item := range preds {
				if pred, ok := item.(map[string]any); ok {
					sanitizePredicate(pred)
				}
			}
		}
	}

	for _, field := range []string{"limit", "offset"} {
		if s, ok := q[field].(string); ok {
			if digitsPattern.MatchString(strings.TrimSpace(s)) {
				n, _ := strconv.Atoi(strings.TrimSpace(s))
				q[field] = n
			} else {
				delete(q, field)
			}
		}
	}
}

// sanitizeSelectItem normalizes one SELECT entry: bare strings become column
// or aggregate expressions, and dicts missing their type tag get one
// inferred.
func sanitizeSelectItem(item any) any {
	switch v := item.(type) {
	case string:
		return exprFromString(v)
	case map[string]any:
		sanitizeExpression(v)
		return v
	default:
		return item
	}
}

func sanitizeExpression(expr map[string]any) {
	// {"column": "t.c"} shorthand.
	if _, hasType := expr["type"]; !hasType {
		if col, ok := expr["column"].(string); ok {
			expr["type"] = ExprColumn
			expr["value"] = col

			delete(expr, "column")
		} else if expr["function"] != nil || expr["aggregation"] != nil {
			expr["type"] = ExprAggregate
		} else if expr["window"] != nil {
			expr["type"] = ExprWindow
		} else if expr["subquery"] != nil || expr["query"] != nil {
			expr["type"] = ExprSubquery
		} else if _, ok := expr["value"]; ok {
			expr["type"] = ExprColumn
		}
	}

	if agg, ok := expr["aggregation"].(string); ok {
		expr["function"] = strings.ToUpper(agg)
		delete(expr, "aggregation")
	}

	if fn, ok := expr["function"].(string); ok {
		expr["function"] = strings.ToUpper(fn)
	}

	// A column expression whose value is a call like COUNT(*) is really an
	// aggregate in disguise.
	if expr["type"] == ExprColumn {
		if value, ok := expr["value"].(string); ok {
			if rewritten, ok := exprFromCall(value); ok {
				alias := expr["alias"]

				for k := range expr {
					delete(expr, k)
				}

				for k, v := range rewritten {
					expr[k] = v
				}

				if alias != nil {
					expr["alias"] = alias
				}
			}
		}
	}

	// Aggregate args given as bare strings become column expressions.
	if args, ok := expr["args"].([]any); ok {
		for i, arg := range args {
			switch a := arg.(type) {
			case string:
				args[i] = map[string]any{"type": ExprColumn, "value": a}
			case map[string]any:
				sanitizeExpression(a)
			}
		}
	}

	if sub, ok := expr["query"].(map[string]any); ok {
		expr["subquery"] = sub
		delete(expr, "query")
	}

	if sub, ok := expr["subquery"].(map[string]any); ok {
		sanitizeQuery(sub)
	}
}

func sanitizeJoin(join map[string]any) {
	renameKeys(join, joinRenames)

	if t, ok := join["type"].(string); ok {
		up := strings.ToUpper(strings.TrimSpace(t))
		up = strings.TrimSpace(strings.ReplaceAll(up, "JOIN", ""))
		up = strings.TrimSuffix(up, " OUTER")

		switch up {
		case JoinInner, JoinLeft, JoinRight, JoinFull, JoinCross:
		default:
			up = JoinInner
		}

		join["type"] = up
	}

	switch on := join["on"].(type) {
	case string:
		if pred := parseOnClause(on); pred != nil {
			join["on"] = []any{pred}
		}
	case map[string]any:
		join["on"] = []any{on}
	}

	if preds, ok := join["on"].([]any); ok {
		for _, item := range preds {
			if pred, ok := item.(map[string]any); ok {
				sanitizePredicate(pred)
			}
		}
	}
}

func sanitizeOrderBy(item any) any {
	entry, ok := item.(map[string]any)
	if !ok {
		if s, isStr := item.(string); isStr {
			return map[string]any{"column": exprFromString(s), "direction": Asc}
		}

		return item
	}

	renameKeys(entry, orderByRenames)

	if col, ok := entry["column"].(string); ok {
		entry["column"] = exprFromString(col)
	} else if col, ok := entry["column"].(map[string]any); ok {
		sanitizeExpression(col)
	}

	if dir, ok := entry["direction"].(string); ok && strings.EqualFold(dir, Desc) {
		entry["direction"] = Desc
	} else {
		entry["direction"] = Asc
	}

	return entry
}

func sanitizePredicate(pred map[string]any) {
	if op, ok := pred["operator"].(string); ok {
		pred["operator"] = strings.ToUpper(strings.TrimSpace(op))
	}

	for _, side := range []string{"left", "right"} {
		switch v := pred[side].(type) {
		case string:
			pred[side] = exprFromString(v)
		case map[string]any:
			sanitizeExpression(v)
		case []any:
			// Bare arrays on the right of IN or BETWEEN become list
			// expressions of literals.
			args := make([]any, len(v))

			for i, item := range v {
				if m, ok := item.(map[string]any); ok {
					sanitizeExpression(m)
					args[i] = m
				} else {
					args[i] = map[string]any{"type": ExprLiteral, "value": item}
				}
			}

			pred[side] = map[string]any{"type": ExprList, "args": args}
		}
	}
}

// exprFromString turns a bare string into a column expression, or an
// aggregate/function expression when it looks like a call.
func exprFromString(s string) map[string]any {
	if expr, ok := exprFromCall(s); ok {
		return expr
	}

	return map[string]any{"type": ExprColumn, "value": s}
}

// exprFromCall parses strings like "COUNT(*)", "SUM(t.amount)", and
// "AVG(DISTINCT price)" into expression objects.
func exprFromCall(s string) (map[string]any, bool) {
	m := callPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, false
	}

	name := strings.ToUpper(m[1])
	inner := m[2]

	exprType := ExprFunction
	if aggregateNames[name] {
		exprType = ExprAggregate
	}

	expr := map[string]any{"type": exprType, "function": name}

	if rest, found := strings.CutPrefix(strings.ToUpper(inner), "DISTINCT "); found {
		expr["distinct"] = true
		inner = strings.TrimSpace(inner[len(inner)-len(rest):])
	}

	var args []any

	if inner != "" {
		for _, arg := range strings.Split(inner, ",") {
			args = append(args, map[string]any{"type": ExprColumn, "value": strings.TrimSpace(arg)})
		}
	}

	expr["args"] = args

	return expr, true
}

// parseOnClause coerces simple join conditions like "a.id = b.id" into a
// single equality predicate. Best-effort only.
func parseOnClause(clause string) map[string]any {
	trimmed := strings.TrimSpace(clause)

	for _, op := range onOperators {
		idx := strings.Index(trimmed, op)
		if idx <= 0 {
			continue
		}

		left := strings.TrimSpace(trimmed[:idx])
		right := strings.TrimSpace(trimmed[idx+len(op):])

		if left == "" || right == "" {
			return nil
		}

		return map[string]any{
			"left":        map[string]any{"type": ExprColumn, "value": left},
			"operator":    op,
			"right":       map[string]any{"type": ExprColumn, "value": right},
			"conjunction": "AND",
		}
	}

	return nil
}

func renameKeys(m map[string]any, renames map[string]string) {
	for from, to := range renames {
		if _, taken := m[to]; taken {
			continue
		}

		if v, ok := m[from]; ok {
			m[to] = v
			delete(m, from)
		}
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}

		return out
	default:
		return v
	}
}
