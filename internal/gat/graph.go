// Package gat implements the graph attention ranker that scores schema nodes
// by relevance to a natural-language question, and the structural fallback
// that augments its output.
package gat

import (
	"fmt"

	"github.com/ashmay29/NL2SQL/internal/spider"
)

// Node kinds in the schema graph.
const (
	NodeGlobal = "global"
	NodeTable  = "table"
	NodeColumn = "column"
)

// sparseFeatureDim is the width of the indicator part of a node feature:
// [is_global, is_table, is_column, is_pk, is_fk].
const sparseFeatureDim = 5

// Node is one vertex of the schema graph.
type Node struct {
	// ID is the stable node identifier: "global", "table:T", or "column:T.C".
	ID string
	// Kind is one of NodeGlobal, NodeTable, NodeColumn.
	Kind string
	// Table and Column name the schema object; Column is empty for table nodes.
	Table  string
	Column string
	// ColType is the canonical type class for column nodes.
	ColType string
	// Sparse is the 5-dim indicator feature.
	Sparse [sparseFeatureDim]float64
	// Text is what the node encoder embeds for this node.
	Text string
}

// Graph is the in-memory graph view of a canonical schema.
type Graph struct {
	Nodes []Node
	// Edges holds each undirected edge once as a source/destination pair.
	Edges [][2]int

	tableNode  map[string]int
	columnNode map[string]int
}

// TableNode returns the node index for a table name, or -1.
func (g *Graph) TableNode(name string) int {
	if idx, ok := g.tableNode[name]; ok {
		return idx
	}

	return -1
}

// ColumnNode returns the node index for "table.column", or -1.
func (g *Graph) ColumnNode(ref string) int {
	if idx, ok := g.columnNode[ref]; ok {
		return idx
	}

	return -1
}

// BuildGraph derives the graph view from a canonical schema: a global node
// connected to every table, tables connected to their columns, and
// column-column edges for every foreign key. The sentinel star column is not
// materialized as a node.
func BuildGraph(canonical *spider.Schema) *Graph {
	g := &Graph{
		tableNode:  make(map[string]int),
		columnNode: make(map[string]int),
	}

	g.Nodes = append(g.Nodes, Node{
		ID:     NodeGlobal,
		Kind:   NodeGlobal,
		Sparse: [sparseFeatureDim]float64{1, 0, 0, 0, 0},
		Text:   "global",
	})

	for _, name := range canonical.TableNamesOriginal {
		idx := len(g.Nodes)
		g.tableNode[name] = idx

		g.Nodes = append(g.Nodes, Node{
			ID:     "table:" + name,
			Kind:   NodeTable,
			Table:  name,
			Sparse: [sparseFeatureDim]float64{0, 1, 0, 0, 0},
			Text:   name,
		})

		g.Edges = append(g.Edges, [2]int{0, idx})
	}

	pk := make(map[int]bool, len(canonical.PrimaryKeys))
	for _, idx := range canonical.PrimaryKeys {
		pk[idx] = true
	}

	fk := make(map[int]bool, len(canonical.ForeignKeys))
	for _, pair := range canonical.ForeignKeys {
		fk[pair[0]] = true
		fk[pair[1]] = true
	}

	colNodeByCanonical := make(map[int]int, len(canonical.ColumnNamesOriginal))

	for cIdx, col := range canonical.ColumnNamesOriginal {
		if col.TableIndex < 0 {
			continue
		}

		tableName := canonical.TableNamesOriginal[col.TableIndex]
		ref := tableName + "." + col.Name
		colType := canonical.ColumnTypes[cIdx]

		idx := len(g.Nodes)
		colNodeByCanonical[cIdx] = idx
		g.columnNode[ref] = idx

		isPK, isFK := 0.0, 0.0
		if pk[cIdx] {
			isPK = 1
		}

		if fk[cIdx] {
			isFK = 1
		}

		g.Nodes = append(g.Nodes, Node{
			ID:      "column:" + ref,
			Kind:    NodeColumn,
			Table:   tableName,
			Column:  col.Name,
			ColType: colType,
			Sparse:  [sparseFeatureDim]float64{0, 0, 1, isPK, isFK},
			Text:    fmt.Sprintf("%s (%s)", ref, colType),
		})

		g.Edges = append(g.Edges, [2]int{g.tableNode[tableName], idx})
	}

	for _, pair := range canonical.ForeignKeys {
		src, okSrc := colNodeByCanonical[pair[0]]
		dst, okDst := colNodeByCanonical[pair[1]]

		if okSrc && okDst {
			g.Edges = append(g.Edges, [2]int{src, dst})
		}
	}

	return g
}

// adjacency expands the undirected edge list into per-node incoming neighbor
// lists with self-loops, the form the attention layers aggregate over.
func (g *Graph) adjacency() [][]int {
	in := make([][]int, len(g.Nodes))
	for i := range in {
		in[i] = append(in[i], i)
	}

	for _, e := range g.Edges {
		in[e[0]] = append(in[e[0]], e[1])
		in[e[1]] = append(in[e[1]], e[0])
	}

	return in
}
