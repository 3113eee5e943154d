package gat

import (
	"regexp"
	"sort"

	"github.com/ashmay29/NL2SQL/internal/spider"
)

// Augmentation reasons attached to fallback-added nodes.
const (
	ReasonFKClosure   = "fk_closure"
	ReasonCalculation = "calculation"
	ReasonDimension   = "dimension"
	ReasonJoinKey     = "join_key"
)

// Synthetic scores for augmented nodes. All sit inside [0.80, 0.88] so they
// rank near, but never above, a confident model hit.
const (
	scoreFKClosure   = 0.88
	scoreJoinKey     = 0.86
	scoreCalculation = 0.84
	scoreDimension   = 0.82
)

var (
	durationMarkers    = regexp.MustCompile(`(?i)\b(duration|length|stay|period|interval|days|hours|time)\b`)
	aggregationMarkers = regexp.MustCompile(`(?i)\b(average|avg|sum|total|count|mean|median|min|max)\b`)
	groupingMarkers    = regexp.MustCompile(`(?i)\b(per|by|each|group|categor\w*)\b`)
	dimensionNames     = regexp.MustCompile(`(?i)(name|title|type|category|label|department)`)
)

// Augment applies the structural fallback rules to the ranker's top-K. The
// result is always a superset of the input; added nodes carry a synthetic
// score and the rule that pulled them in. It needs no keyword configuration:
// every rule is driven by the schema graph and generic question markers.
func Augment(question string, canonical *spider.Schema, ranked []RankedNode) []RankedNode {
	set := newNodeSet(canonical, ranked)

	// Rule 1: FK closure. Any FK edge touching a selected table pulls in the
	// peer table and both FK columns: if the query touches the table, a join
	// through that edge is likely.
	for _, table := range set.tables() {
		for _, fk := range set.fkEdges {
			if fk.srcTable != table && fk.dstTable != table {
				continue
			}

			set.addTable(fk.srcTable, ReasonFKClosure, scoreFKClosure)
			set.addTable(fk.dstTable, ReasonFKClosure, scoreFKClosure)
			set.addColumn(fk.srcTable, fk.srcColumn, ReasonFKClosure, scoreFKClosure)
			set.addColumn(fk.dstTable, fk.dstColumn, ReasonFKClosure, scoreFKClosure)
		}
	}

	// Rule 2: calculation columns keyed off question markers.
	if durationMarkers.MatchString(question) {
		set.addColumnsOfType(spider.TypeTime, ReasonCalculation, scoreCalculation)
	}

	if aggregationMarkers.MatchString(question) {
		set.addColumnsOfType(spider.TypeNumber, ReasonCalculation, scoreCalculation)
	}

	// Rule 3: grouping dimensions plus join keys between selected tables.
	if groupingMarkers.MatchString(question) {
		for _, table := range set.tables() {
			if col, ok := set.dimensionColumn(table); ok {
				set.addColumn(table, col, ReasonDimension, scoreDimension)
			}
		}
	}

	selected := set.tableSet()

	for _, fk := range set.fkEdges {
		if selected[fk.srcTable] && selected[fk.dstTable] {
			set.addColumn(fk.srcTable, fk.srcColumn, ReasonJoinKey, scoreJoinKey)
			set.addColumn(fk.dstTable, fk.dstColumn, ReasonJoinKey, scoreJoinKey)
		}
	}

	return set.result()
}

type fkEdge struct {
	srcTable, srcColumn string
	dstTable, dstColumn string
}

// nodeSet tracks the growing augmented set with stable iteration order.
type nodeSet struct {
	canonical *spider.Schema
	fkEdges   []fkEdge

	entries []RankedNode
	present map[string]bool
}

func newNodeSet(canonical *spider.Schema, ranked []RankedNode) *nodeSet {
	s := &nodeSet{
		canonical: canonical,
		present:   make(map[string]bool, len(ranked)),
	}

	for _, pair := range canonical.ForeignKeys {
		src := canonical.ColumnNamesOriginal[pair[0]]
		dst := canonical.ColumnNamesOriginal[pair[1]]

		if src.TableIndex < 0 || dst.TableIndex < 0 {
			continue
		}

		s.fkEdges = append(s.fkEdges, fkEdge{
			srcTable:  canonical.TableNamesOriginal[src.TableIndex],
			srcColumn: src.Name,
			dstTable:  canonical.TableNamesOriginal[dst.TableIndex],
			dstColumn: dst.Name,
		})
	}

	for _, node := range ranked {
		if !s.present[node.NodeID] {
			s.present[node.NodeID] = true
			s.entries = append(s.entries, node)
		}
	}

	return s
}

// tables returns the tables currently represented in the set, either as table
// nodes or as owners of selected columns, in first-seen order.
func (s *nodeSet) tables() []string {
	var out []string

	seen := make(map[string]bool)

	for _, node := range s.entries {
		table := node.tableName()
		if table != "" && !seen[table] {
			seen[table] = true
			out = append(out, table)
		}
	}

	return out
}

func (s *nodeSet) tableSet() map[string]bool {
	out := make(map[string]bool)
	for _, t := range s.tables() {
		out[t] = true
	}

	return out
}

func (s *nodeSet) addTable(table, reason string, score float64) {
	if s.canonical.TableIndex(table) < 0 {
		return
	}

	id := "table:" + table
	if s.present[id] {
		return
	}

	s.present[id] = true
	s.entries = append(s.entries, RankedNode{
		NodeID: id,
		Name:   table,
		Kind:   NodeTable,
		Score:  score,
		Reason: reason,
	})
}

func (s *nodeSet) addColumn(table, column, reason string, score float64) {
	idx := s.canonical.ColumnIndex(table, column)
	if idx < 0 {
		return
	}

	id := "column:" + table + "." + column
	if s.present[id] {
		return
	}

	s.present[id] = true
	s.entries = append(s.entries, RankedNode{
		NodeID:  id,
		Name:    table + "." + column,
		Kind:    NodeColumn,
		Score:   score,
		ColType: s.canonical.ColumnTypes[idx],
		Reason:  reason,
	})
}

// addColumnsOfType adds every column of the given canonical type class in
// tables already selected.
func (s *nodeSet) addColumnsOfType(typeClass, reason string, score float64) {
	selected := s.tableSet()

	for i, col := range s.canonical.ColumnNamesOriginal {
		if col.TableIndex < 0 || s.canonical.ColumnTypes[i] != typeClass {
			continue
		}

		table := s.canonical.TableNamesOriginal[col.TableIndex]
		if selected[table] {
			s.addColumn(table, col.Name, reason, score)
		}
	}
}

// dimensionColumn picks a grouping dimension for a table: the first column
// whose name looks dimensional, otherwise the first text column.
func (s *nodeSet) dimensionColumn(table string) (string, bool) {
	ti := s.canonical.TableIndex(table)
	if ti < 0 {
		return "", false
	}

	firstText := ""

	for i, col := range s.canonical.ColumnNamesOriginal {
		if col.TableIndex != ti {
			continue
		}

		if dimensionNames.MatchString(col.Name) {
			return col.Name, true
		}

		if firstText == "" && s.canonical.ColumnTypes[i] == spider.TypeText {
			firstText = col.Name
		}
	}

	if firstText != "" {
		return firstText, true
	}

	return "", false
}

// result re-ranks the set by descending score with stable insertion-order
// ties and renumbers ranks.
func (s *nodeSet) result() []RankedNode {
	out := make([]RankedNode, len(s.entries))
	copy(out, s.entries)

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})

	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}

func (n RankedNode) tableName() string {
	switch n.Kind {
	case NodeTable:
		return n.Name
	case NodeColumn:
		for i := range n.Name {
			if n.Name[i] == '.' {
				return n.Name[:i]
			}
		}
	}

	return ""
}
