package gat

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashmay29/NL2SQL/internal/embedding"
	"github.com/ashmay29/NL2SQL/internal/spider"
	"github.com/ashmay29/NL2SQL/internal/testutil"
)

// patternData fills a tensor with small deterministic values so forward
// passes are reproducible without shipping real trained weights.
func patternData(n int, seed int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64((i*31+seed*17)%23-11) / 230.0
	}

	return out
}

func testTensor(shape []int, seed int) tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return tensor{Shape: shape, Data: patternData(n, seed)}
}

func testStateDict(questionDim int) stateDict {
	sd := stateDict{
		"input_proj.weight": testTensor([]int{hiddenDim, sparseFeatureDim + nodeEmbeddingDim + questionDim}, 1),
		"input_proj.bias":   testTensor([]int{hiddenDim}, 2),
		"classifier.weight": testTensor([]int{1, hiddenDim}, 3),
		"classifier.bias":   testTensor([]int{1}, 4),
	}

	for i, prefix := range []string{"conv1", "conv2", "conv3"} {
		sd[prefix+".lin.weight"] = testTensor([]int{attentionHeads * hiddenDim, hiddenDim}, 5+i)
		sd[prefix+".att_src"] = testTensor([]int{1, attentionHeads, hiddenDim}, 8+i)
		sd[prefix+".att_dst"] = testTensor([]int{1, attentionHeads, hiddenDim}, 11+i)
		sd[prefix+".bias"] = testTensor([]int{hiddenDim}, 14+i)
	}

	return sd
}

func writeCheckpoint(t *testing.T, wrapped bool, questionDim int) string {
	t.Helper()

	sd := testStateDict(questionDim)

	var payload any = sd

	if wrapped {
		prefixed := stateDict{}
		for k, v := range sd {
			prefixed["module."+k] = v
		}

		payload = map[string]any{"model_state_dict": prefixed, "epoch": 12}
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "best_model.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func testRanker(t *testing.T, questionDim int) *Ranker {
	t.Helper()

	model, err := LoadModel(writeCheckpoint(t, false, questionDim))
	require.NoError(t, err)

	return NewRanker(model,
		embedding.NewHashProvider("node-model", nodeEmbeddingDim),
		embedding.NewHashProvider("question-model", questionDim))
}

func TestLoadModelMissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadModelCheckpointBundle(t *testing.T) {
	model, err := LoadModel(writeCheckpoint(t, true, 768))
	require.NoError(t, err)

	assert.Equal(t, 768, model.QuestionDim)
}

func TestLoadModelDerivesQuestionDim(t *testing.T) {
	model, err := LoadModel(writeCheckpoint(t, false, 384))
	require.NoError(t, err)

	assert.Equal(t, 384, model.QuestionDim)
}

func TestLoadModelShapeMismatch(t *testing.T) {
	sd := testStateDict(768)
	sd["classifier.weight"] = testTensor([]int{2, hiddenDim}, 3)

	data, err := json.Marshal(sd)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = LoadModel(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.weight")
}

func TestLoadRankerMissingWeightsDisables(t *testing.T) {
	ranker := LoadRanker(filepath.Join(t.TempDir(), "absent.json"),
		embedding.DefaultNodeConfig(), embedding.DefaultQuestionConfig())

	assert.False(t, ranker.Available())

	_, err := ranker.ScoreNodes(context.Background(), "anything", spider.Convert(testutil.ECommerceSchema()), 10)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBuildGraphShape(t *testing.T) {
	canonical := spider.Convert(testutil.ECommerceSchema())
	graph := BuildGraph(canonical)

	// 1 global + 5 tables + 24 columns; the star sentinel has no node.
	require.Len(t, graph.Nodes, 30)

	// 5 global-table + 24 table-column + 4 FK edges.
	assert.Len(t, graph.Edges, 33)

	assert.Equal(t, NodeGlobal, graph.Nodes[0].Kind)
	assert.Equal(t, "global", graph.Nodes[0].Text)

	idx := graph.ColumnNode("customers.total_spent")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "customers.total_spent (number)", graph.Nodes[idx].Text)
}

func TestBuildGraphFlags(t *testing.T) {
	canonical := spider.Convert(testutil.ECommerceSchema())
	graph := BuildGraph(canonical)

	pkNode := graph.Nodes[graph.ColumnNode("customers.customer_id")]
	assert.Equal(t, 1.0, pkNode.Sparse[3], "primary key flag")

	fkNode := graph.Nodes[graph.ColumnNode("orders.customer_id")]
	assert.Equal(t, 1.0, fkNode.Sparse[4], "foreign key flag")
}

func TestScoreNodesRangeAndOrder(t *testing.T) {
	ranker := testRanker(t, 768)
	canonical := spider.Convert(testutil.ECommerceSchema())

	results, err := ranker.ScoreNodes(context.Background(), "top 5 customers by total spent", canonical, 10)
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i, node := range results {
		assert.GreaterOrEqual(t, node.Score, 0.0)
		assert.LessOrEqual(t, node.Score, 1.0)
		assert.Equal(t, i+1, node.Rank)
		assert.NotEqual(t, NodeGlobal, node.Kind)

		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, node.Score)
		}
	}
}

func TestScoreNodesDeterministic(t *testing.T) {
	ranker := testRanker(t, 768)
	canonical := spider.Convert(testutil.ECommerceSchema())

	a, err := ranker.ScoreNodes(context.Background(), "orders per country", canonical, 15)
	require.NoError(t, err)

	b, err := ranker.ScoreNodes(context.Background(), "orders per country", canonical, 15)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestScoreNodesCancellation(t *testing.T) {
	ranker := testRanker(t, 768)
	canonical := spider.Convert(testutil.ECommerceSchema())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ranker.ScoreNodes(ctx, "anything", canonical, 10)
	require.Error(t, err)
}

func TestAugmentSuperset(t *testing.T) {
	ranker := testRanker(t, 768)
	canonical := spider.Convert(testutil.ECommerceSchema())

	ranked, err := ranker.ScoreNodes(context.Background(), "total sales per category", canonical, 8)
	require.NoError(t, err)

	augmented := Augment("total sales per category", canonical, ranked)

	ids := make(map[string]bool, len(augmented))
	for _, node := range augmented {
		ids[node.NodeID] = true
	}

	for _, node := range ranked {
		assert.True(t, ids[node.NodeID], "ranked node %s must survive augmentation", node.NodeID)
	}
}

func TestAugmentFKClosure(t *testing.T) {
	canonical := spider.Convert(testutil.ECommerceSchema())

	seed := []RankedNode{
		{NodeID: "table:orders", Name: "orders", Kind: NodeTable, Score: 0.95, Rank: 1},
	}

	augmented := Augment("show all orders", canonical, seed)

	ids := make(map[string]bool)
	for _, node := range augmented {
		ids[node.NodeID] = true
	}

	// orders joins customers (orders.customer_id -> customers.customer_id)
	// and order_items joins orders.
	assert.True(t, ids["table:customers"])
	assert.True(t, ids["column:orders.customer_id"])
	assert.True(t, ids["column:customers.customer_id"])
	assert.True(t, ids["column:order_items.order_id"])
	assert.True(t, ids["column:orders.order_id"])
}

func TestAugmentScenarioHospital(t *testing.T) {
	canonical := spider.Convert(testutil.HospitalSchema())

	seed := []RankedNode{
		{NodeID: "table:admissions", Name: "admissions", Kind: NodeTable, Score: 0.93, Rank: 1},
	}

	question := "average length of admission stay per department"
	augmented := Augment(question, canonical, seed)

	ids := make(map[string]bool)
	for _, node := range augmented {
		ids[node.NodeID] = true
	}

	for _, want := range []string{
		"table:admissions",
		"table:departments",
		"column:admissions.admission_date",
		"column:admissions.discharge_date",
		"column:admissions.department_id",
		"column:departments.id",
		"column:departments.name",
	} {
		assert.True(t, ids[want], "expected %s in augmented set", want)
	}
}

func TestAugmentSyntheticScoresAndReasons(t *testing.T) {
	canonical := spider.Convert(testutil.ECommerceSchema())

	seed := []RankedNode{
		{NodeID: "table:orders", Name: "orders", Kind: NodeTable, Score: 0.95, Rank: 1},
	}

	augmented := Augment("count of orders per status", canonical, seed)

	for _, node := range augmented {
		if node.NodeID == "table:orders" {
			assert.Empty(t, node.Reason)
			assert.Equal(t, 0.95, node.Score)

			continue
		}

		assert.NotEmpty(t, node.Reason, "augmented node %s needs a reason", node.NodeID)
		assert.GreaterOrEqual(t, node.Score, 0.80)
		assert.LessOrEqual(t, node.Score, 0.88)
	}
}

func TestAugmentRanksSequential(t *testing.T) {
	canonical := spider.Convert(testutil.ECommerceSchema())

	seed := []RankedNode{
		{NodeID: "table:products", Name: "products", Kind: NodeTable, Score: 0.9, Rank: 1},
	}

	augmented := Augment("products by category", canonical, seed)

	for i, node := range augmented {
		assert.Equal(t, i+1, node.Rank)

		if i > 0 {
			assert.GreaterOrEqual(t, augmented[i-1].Score, node.Score)
		}
	}
}
