package gat

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// hiddenDim is the hidden width of every attention layer.
	hiddenDim = 256
	// attentionHeads is the number of heads per layer; head outputs are
	// averaged, not concatenated.
	attentionHeads = 4
	// nodeEmbeddingDim is the text-embedding part of a node feature.
	nodeEmbeddingDim = 384
	// leakySlope is the negative slope of the attention LeakyReLU.
	leakySlope = 0.2
)

// attentionLayer is one multi-head graph attention layer. Weights follow the
// 4-head averaged layout: Lin stacks the per-head projections row-wise
// (heads*out, in); AttSrc/AttDst hold one attention vector per head.
type attentionLayer struct {
	Lin    *mat.Dense // (heads*hidden, hidden)
	AttSrc *mat.Dense // (heads, hidden)
	AttDst *mat.Dense // (heads, hidden)
	Bias   []float64  // (hidden)
}

// Model is the 3-layer question-conditioned GAT ranker. It is immutable after
// loading and safe for concurrent forward passes.
type Model struct {
	InputProjW *mat.Dense // (hidden, sparse+node_emb+question)
	InputProjB []float64  // (hidden)

	Convs [3]attentionLayer

	ClassifierW []float64 // (hidden): single output row
	ClassifierB float64

	// QuestionDim is derived from the persisted input projection so the
	// encoder choice (384 vs 768) always follows the checkpoint.
	QuestionDim int
}

// Forward runs inference over the graph and returns one sigmoid score per
// node. Dropout is inference-off by construction; the context is checked
// between layers so a cancelled caller never blocks a worker for a full pass.
func (m *Model) Forward(ctx context.Context, g *Graph, nodeEmbeddings [][]float32, question []float32) ([]float64, error) {
	n := len(g.Nodes)
	inDim := sparseFeatureDim + nodeEmbeddingDim + m.QuestionDim

	// Question injection at input: every node sees [sparse | node_emb | q].
	x := mat.NewDense(n, inDim, nil)

	for i, node := range g.Nodes {
		row := x.RawRowView(i)
		copy(row[:sparseFeatureDim], node.Sparse[:])

		for j, v := range nodeEmbeddings[i] {
			row[sparseFeatureDim+j] = float64(v)
		}

		for j, v := range question {
			row[sparseFeatureDim+nodeEmbeddingDim+j] = float64(v)
		}
	}

	h := linear(x, m.InputProjW, m.InputProjB)
	reluInPlace(h)

	adj := g.adjacency()

	for _, conv := range m.Convs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h = conv.forward(h, adj)
		reluInPlace(h)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]float64, n)

	for i := range n {
		logit := m.ClassifierB
		row := h.RawRowView(i)

		for j, w := range m.ClassifierW {
			logit += w * row[j]
		}

		scores[i] = sigmoid(logit)
	}

	return scores, nil
}

// forward computes one attention layer over all nodes.
func (l *attentionLayer) forward(h *mat.Dense, adj [][]int) *mat.Dense {
	n, _ := h.Dims()

	// z holds the per-head projections: heads blocks of (n, hidden).
	var z mat.Dense

	z.Mul(h, l.Lin.T()) // (n, heads*hidden)

	// Per-head attention coefficients for every node as source and dest.
	srcScore := make([][]float64, attentionHeads)
	dstScore := make([][]float64, attentionHeads)

	for head := range attentionHeads {
		srcScore[head] = make([]float64, n)
		dstScore[head] = make([]float64, n)

		aSrc := l.AttSrc.RawRowView(head)
		aDst := l.AttDst.RawRowView(head)

		for i := range n {
			zRow := z.RawRowView(i)[head*hiddenDim : (head+1)*hiddenDim]

			var s, d float64

			for j := range hiddenDim {
				s += aSrc[j] * zRow[j]
				d += aDst[j] * zRow[j]
			}

			srcScore[head][i] = s
			dstScore[head][i] = d
		}
	}

	out := mat.NewDense(n, hiddenDim, nil)

	for i := range n {
		neighbors := adj[i]
		outRow := out.RawRowView(i)

		for head := range attentionHeads {
			// Softmax over incoming neighbors (self-loop included).
			logits := make([]float64, len(neighbors))
			maxLogit := math.Inf(-1)

			for k, j := range neighbors {
				e := leakyReLU(srcScore[head][j] + dstScore[head][i])
				logits[k] = e

				if e > maxLogit {
					maxLogit = e
				}
			}

			var denom float64

			for k := range logits {
				logits[k] = math.Exp(logits[k] - maxLogit)
				denom += logits[k]
			}

			for k, j := range neighbors {
				alpha := logits[k] / denom
				zRow := z.RawRowView(j)[head*hiddenDim : (head+1)*hiddenDim]

				for c := range hiddenDim {
					outRow[c] += alpha * zRow[c] / attentionHeads
				}
			}
		}

		for c := range hiddenDim {
			outRow[c] += l.Bias[c]
		}
	}

	return out
}

func linear(x *mat.Dense, w *mat.Dense, bias []float64) *mat.Dense {
	var out mat.Dense

	out.Mul(x, w.T())

	n, cols := out.Dims()
	for i := range n {
		row := out.RawRowView(i)
		for j := range cols {
			row[j] += bias[j]
		}
	}

	return &out
}

func reluInPlace(m *mat.Dense) {
	n, cols := m.Dims()
	for i := range n {
		row := m.RawRowView(i)
		for j := range cols {
			if row[j] < 0 {
				row[j] = 0
			}
		}
	}
}

func leakyReLU(v float64) float64 {
	if v < 0 {
		return leakySlope * v
	}

	return v
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
