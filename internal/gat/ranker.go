package gat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ashmay29/NL2SQL/internal/embedding"
	"github.com/ashmay29/NL2SQL/internal/logging"
	"github.com/ashmay29/NL2SQL/internal/spider"
)

// ErrUnavailable is returned when the ranker has no usable model; callers
// treat it as "no pruning" and continue with the full schema.
var ErrUnavailable = errors.New("gat: ranker unavailable")

// RankedNode is one scored schema node.
type RankedNode struct {
	NodeID  string  `json:"node_id"`
	Name    string  `json:"node_name"`
	Kind    string  `json:"node_type"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
	ColType string  `json:"col_type,omitempty"`
	// Reason is set for nodes added by the fallback, naming the rule.
	Reason string `json:"reason,omitempty"`
}

// Ranker scores schema nodes with the trained GAT model. The model and
// encoders are loaded once and shared; ScoreNodes is safe to call
// concurrently.
type Ranker struct {
	model           *Model
	nodeEncoder     embedding.Provider
	questionEncoder embedding.Provider
}

// NewRanker wires a loaded model with its encoders. A nil model produces a
// permanently unavailable ranker, which the pipeline tolerates.
func NewRanker(model *Model, nodeEncoder, questionEncoder embedding.Provider) *Ranker {
	return &Ranker{
		model:           model,
		nodeEncoder:     nodeEncoder,
		questionEncoder: questionEncoder,
	}
}

// LoadRanker loads weights from path and builds encoders sized to the
// checkpoint. On load failure it logs a warning and returns an unavailable
// ranker rather than an error: missing weights must not block startup.
func LoadRanker(path string, nodeCfg, questionCfg embedding.Config) *Ranker {
	model, err := LoadModel(path)
	if err != nil {
		logging.Warnf("GAT ranker disabled: %v", err)
		return &Ranker{}
	}

	// The persisted input projection decides the question dimension.
	if questionCfg.Dimensions != model.QuestionDim {
		logging.Warnf("question encoder dimension %d overridden by checkpoint to %d",
			questionCfg.Dimensions, model.QuestionDim)
		questionCfg.Dimensions = model.QuestionDim
	}

	nodeEncoder, err := embedding.NewProvider(nodeCfg)
	if err != nil {
		logging.Warnf("GAT ranker disabled: node encoder: %v", err)
		return &Ranker{}
	}

	questionEncoder, err := embedding.NewProvider(questionCfg)
	if err != nil {
		logging.Warnf("GAT ranker disabled: question encoder: %v", err)
		return &Ranker{}
	}

	return NewRanker(model, nodeEncoder, questionEncoder)
}

// Available reports whether the ranker has a loaded model.
func (r *Ranker) Available() bool {
	return r.model != nil
}

// ScoreNodes builds the schema graph, runs a forward pass conditioned on the
// question, and returns the topK nodes by descending score. Ties break on
// node index. The global node never appears in the result.
func (r *Ranker) ScoreNodes(ctx context.Context, question string, canonical *spider.Schema, topK int) ([]RankedNode, error) {
	if !r.Available() {
		return nil, ErrUnavailable
	}

	graph := BuildGraph(canonical)

	texts := make([]string, len(graph.Nodes))
	for i, node := range graph.Nodes {
		texts[i] = node.Text
	}

	nodeEmbeddings, err := r.nodeEncoder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("node encoding failed: %w", err)
	}

	questionVec, err := r.questionEncoder.Encode(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("question encoding failed: %w", err)
	}

	if len(questionVec) != r.model.QuestionDim {
		return nil, fmt.Errorf("question embedding has dimension %d, model expects %d",
			len(questionVec), r.model.QuestionDim)
	}

	scores, err := r.model.Forward(ctx, graph, nodeEmbeddings, questionVec)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}

		return order[a] < order[b]
	})

	if topK <= 0 || topK > len(order) {
		topK = len(order)
	}

	var results []RankedNode

	for _, idx := range order {
		if len(results) == topK {
			break
		}

		node := graph.Nodes[idx]
		if node.Kind == NodeGlobal {
			continue
		}

		name := node.Table
		if node.Kind == NodeColumn {
			name = node.Table + "." + node.Column
		}

		results = append(results, RankedNode{
			NodeID:  node.ID,
			Name:    name,
			Kind:    node.Kind,
			Score:   scores[idx],
			Rank:    len(results) + 1,
			ColType: node.ColType,
		})
	}

	return results, nil
}
