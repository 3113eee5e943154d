// Package prompt assembles the LLM prompt: a pruned or compact schema
// rendering, optional RAG examples, optional conversation context, and the IR
// shape description. Every function here is pure, so identical inputs always
// produce the byte-identical prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ashmay29/NL2SQL/internal/gat"
	"github.com/ashmay29/NL2SQL/internal/types"
)

// DefaultMaxColumns bounds per-table columns in the compact rendering.
const DefaultMaxColumns = 8

// Example is one retrieved (question, sql) pair for the RAG block.
type Example struct {
	Question string
	SQL      string
}

// Turn is one prior conversation turn for the context block.
type Turn struct {
	Question string
	SQL      string
}

// RenderPrunedSchema renders only the tables and columns surfaced by the
// ranker and its fallback, one CREATE TABLE line per table. Canonical column
// order is preserved and SQL types are upper-cased. A selected table with no
// selected columns renders all of its columns.
func RenderPrunedSchema(schema *types.Schema, nodes []gat.RankedNode) string {
	selectedTables := make(map[string]bool)
	selectedColumns := make(map[string]map[string]bool)

	for _, node := range nodes {
		switch node.Kind {
		case gat.NodeTable:
			selectedTables[node.Name] = true
		case gat.NodeColumn:
			table, column, found := strings.Cut(node.Name, ".")
			if !found {
				continue
			}

			selectedTables[table] = true

			if selectedColumns[table] == nil {
				selectedColumns[table] = make(map[string]bool)
			}

			selectedColumns[table][column] = true
		}
	}

	var lines []string

	for _, tableName := range schema.TableNames() {
		if !selectedTables[tableName] {
			continue
		}

		table := schema.Tables[tableName]
		wanted := selectedColumns[tableName]

		var cols []string

		for _, col := range table.Columns {
			if len(wanted) > 0 && !wanted[col.Name] {
				continue
			}

			cols = append(cols, fmt.Sprintf("%s %s", col.Name, strings.ToUpper(col.Type)))
		}

		lines = append(lines, fmt.Sprintf("CREATE TABLE %s (%s);", tableName, strings.Join(cols, ", ")))
	}

	return strings.Join(lines, "\n")
}

// RenderCompactSchema is the no-ranker fallback: every table with at most
// maxColumns columns, preferring primary and foreign key columns, with an
// overflow marker.
func RenderCompactSchema(schema *types.Schema, maxColumns int) string {
	if maxColumns <= 0 {
		maxColumns = DefaultMaxColumns
	}

	lines := []string{fmt.Sprintf("Database: %s", schema.Database)}

	for _, tableName := range schema.TableNames() {
		table := schema.Tables[tableName]

		fkCols := make(map[string]bool)

		for _, fk := range table.ForeignKeys {
			for _, col := range fk.ConstrainedColumns {
				fkCols[col] = true
			}
		}

		// Key columns first, then the rest in schema order.
		var keyCols, otherCols []string

		for _, col := range table.Columns {
			if col.PrimaryKey || fkCols[col.Name] {
				keyCols = append(keyCols, col.Name)
			} else {
				otherCols = append(otherCols, col.Name)
			}
		}

		cols := append(keyCols, otherCols...)
		if len(cols) > maxColumns {
			overflow := len(cols) - maxColumns
			cols = append(cols[:maxColumns], fmt.Sprintf("... (+%d more)", overflow))
		}

		lines = append(lines, fmt.Sprintf("- %s: %s", tableName, strings.Join(cols, ", ")))
	}

	return strings.Join(lines, "\n")
}

// RenderExamples renders the RAG block. The assembler does not filter or
// rank; it renders whatever was retrieved.
func RenderExamples(examples []Example) string {
	if len(examples) == 0 {
		return ""
	}

	lines := []string{"Similar past queries (for reference):"}

	for i, ex := range examples {
		lines = append(lines, fmt.Sprintf("%d. Q: %s", i+1, ex.Question))
		lines = append(lines, fmt.Sprintf("   SQL: %s", ex.SQL))
	}

	return strings.Join(lines, "\n")
}

// RenderContext renders the conversation block from the last turns.
func RenderContext(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := []string{"Previous conversation:"}

	for i, turn := range turns {
		lines = append(lines, fmt.Sprintf("%d. User: %s", i+1, turn.Question))
		lines = append(lines, fmt.Sprintf("   SQL: %s", turn.SQL))
	}

	return strings.Join(lines, "\n")
}

// irShape is the stable structural description of the expected IR JSON. Field
// names are literal; the rules mirror what the sanitizer and validator
// enforce so a compliant response passes without rewriting.
const irShape = `CRITICAL: Use EXACT field names as specified below.

JSON Structure:
{
  "ctes": [{"name": "cte_name", "query": {...}}],
  "select": [{"type": "column", "value": "table.column", "alias": "..."}],
  "from_table": "table_name",
  "joins": [{"type": "INNER", "table": "table_name", "on": [{"left": {"type": "column", "value": "..."}, "operator": "=", "right": {"type": "column", "value": "..."}}]}],
  "where": [{"left": {...}, "operator": "=", "right": {"type": "literal", "value": ...}}],
  "group_by": ["table.column"],
  "having": [{"left": {...}, "operator": ">", "right": {...}}],
  "order_by": [{"column": "table.column", "direction": "ASC"}],
  "limit": 10,
  "offset": 0,
  "confidence": 0.9,
  "ambiguities": [],
  "questions": []
}

Rules:
- select items MUST be objects with 'type' and 'value' fields, never bare strings
- aggregates use type='aggregate' with 'function', 'distinct', and 'args' fields
- COUNT(*) is {"type": "aggregate", "function": "COUNT", "args": [{"type": "column", "value": "*"}], "distinct": false}
- joins MUST use 'type', 'table', and 'on' (not 'join_type', 'target_table', or 'condition')
- order_by MUST use 'column' and 'direction' (not 'field' or 'col'); direction is 'ASC' or 'DESC'
- ctes MUST use 'name' and 'query' (not 'cte_name' or 'cte_definition')
- join type is one of: INNER, LEFT, RIGHT, FULL, CROSS
- if ORDER BY uses an aggregate like COUNT(*), that aggregate MUST also appear in SELECT
- when any SELECT item aggregates, every non-aggregated SELECT column MUST be listed in group_by
- literal values always use {"type": "literal", "value": ...}; never inline values into column refs
- confidence is a float in [0, 1]; list genuine ambiguities and clarification questions when unsure`

// BuildIRPrompt assembles the full generation prompt.
func BuildIRPrompt(schemaText, question, ragBlock, contextBlock string) string {
	parts := []string{
		"You are an expert NL2SQL assistant. Convert the user's question into a JSON Intermediate Representation (IR) for SQL.",
		"",
		"Return ONLY valid JSON. Do not include explanations.",
		"",
		"Schema:",
		schemaText,
	}

	if ragBlock != "" {
		parts = append(parts, "", ragBlock)
	}

	if contextBlock != "" {
		parts = append(parts, "", contextBlock)
	}

	parts = append(parts,
		"",
		"User Question:",
		question,
		"",
		irShape,
	)

	return strings.Join(parts, "\n")
}

// BuildCorrectionPrompt extends a failed prompt with validator diagnostics
// for the single correction round.
func BuildCorrectionPrompt(original string, diagnostics []string) string {
	parts := []string{
		original,
		"",
		"Your previous IR was invalid:",
	}

	for i, d := range diagnostics {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, d))
	}

	parts = append(parts, "", "Fix these problems and return the corrected JSON IR only.")

	return strings.Join(parts, "\n")
}

// BuildRepairNudge asks for well-formed JSON after a parse failure.
func BuildRepairNudge(original string) string {
	return original + "\n\nYour previous response was not valid JSON. Return ONLY the JSON object, with no surrounding text."
}
