package gat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// tensor is one entry of a persisted state dict.
type tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

type stateDict map[string]tensor

// LoadModel reads a persisted state dict and materializes the ranker model.
// The file is either a raw state dict or a training checkpoint bundle with a
// "model_state_dict"/"state_dict" wrapper; "module." prefixes left by data
// parallel training are stripped. A missing file or a shape mismatch returns
// an error so the caller can disable the ranker.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}

	sd, err := parseStateDict(data)
	if err != nil {
		return nil, err
	}

	return buildModel(sd)
}

func parseStateDict(data []byte) (stateDict, error) {
	// Try a checkpoint bundle first.
	var bundle map[string]json.RawMessage
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse model weights: %w", err)
	}

	raw := data

	for _, key := range []string{"model_state_dict", "state_dict"} {
		if nested, ok := bundle[key]; ok {
			raw = nested
			break
		}
	}

	var sd stateDict
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("failed to parse state dict: %w", err)
	}

	stripped := make(stateDict, len(sd))
	for name, t := range sd {
		stripped[strings.TrimPrefix(name, "module.")] = t
	}

	return stripped, nil
}

func buildModel(sd stateDict) (*Model, error) {
	inputW, err := denseTensor(sd, "input_proj.weight")
	if err != nil {
		return nil, err
	}

	rows, cols := inputW.Dims()
	if rows != hiddenDim {
		return nil, fmt.Errorf("input_proj.weight has %d rows, expected %d", rows, hiddenDim)
	}

	questionDim := cols - sparseFeatureDim - nodeEmbeddingDim
	if questionDim <= 0 {
		return nil, fmt.Errorf("input_proj.weight has %d columns, too narrow for %d-dim node features",
			cols, sparseFeatureDim+nodeEmbeddingDim)
	}

	inputB, err := vectorTensor(sd, "input_proj.bias", hiddenDim)
	if err != nil {
		return nil, err
	}

	model := &Model{
		InputProjW:  inputW,
		InputProjB:  inputB,
		QuestionDim: questionDim,
	}

	for i := range 3 {
		conv, err := loadConv(sd, fmt.Sprintf("conv%d", i+1))
		if err != nil {
			return nil, err
		}

		model.Convs[i] = conv
	}

	classifierW, err := denseTensor(sd, "classifier.weight")
	if err != nil {
		return nil, err
	}

	cRows, cCols := classifierW.Dims()
	if cRows != 1 || cCols != hiddenDim {
		return nil, fmt.Errorf("classifier.weight has shape (%d, %d), expected (1, %d)", cRows, cCols, hiddenDim)
	}

	classifierB, err := vectorTensor(sd, "classifier.bias", 1)
	if err != nil {
		return nil, err
	}

	model.ClassifierW = classifierW.RawRowView(0)
	model.ClassifierB = classifierB[0]

	return model, nil
}

func loadConv(sd stateDict, prefix string) (attentionLayer, error) {
	lin, err := denseTensor(sd, prefix+".lin.weight")
	if err != nil {
		return attentionLayer{}, err
	}

	rows, cols := lin.Dims()
	if rows != attentionHeads*hiddenDim || cols != hiddenDim {
		return attentionLayer{}, fmt.Errorf("%s.lin.weight has shape (%d, %d), expected (%d, %d)",
			prefix, rows, cols, attentionHeads*hiddenDim, hiddenDim)
	}

	attSrc, err := denseTensor(sd, prefix+".att_src")
	if err != nil {
		return attentionLayer{}, err
	}

	attDst, err := denseTensor(sd, prefix+".att_dst")
	if err != nil {
		return attentionLayer{}, err
	}

	for name, t := range map[string]*mat.Dense{prefix + ".att_src": attSrc, prefix + ".att_dst": attDst} {
		r, c := t.Dims()
		if r != attentionHeads || c != hiddenDim {
			return attentionLayer{}, fmt.Errorf("%s has shape (%d, %d), expected (%d, %d)",
				name, r, c, attentionHeads, hiddenDim)
		}
	}

	bias, err := vectorTensor(sd, prefix+".bias", hiddenDim)
	if err != nil {
		return attentionLayer{}, err
	}

	return attentionLayer{Lin: lin, AttSrc: attSrc, AttDst: attDst, Bias: bias}, nil
}

// denseTensor materializes a named 2-D (or squeezable 3-D) tensor.
func denseTensor(sd stateDict, name string) (*mat.Dense, error) {
	t, ok := sd[name]
	if !ok {
		return nil, fmt.Errorf("state dict is missing %s", name)
	}

	shape := squeeze(t.Shape)
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s has %d dimensions, expected 2", name, len(shape))
	}

	if shape[0]*shape[1] != len(t.Data) {
		return nil, fmt.Errorf("%s data length %d does not match shape %v", name, len(t.Data), t.Shape)
	}

	return mat.NewDense(shape[0], shape[1], t.Data), nil
}

func vectorTensor(sd stateDict, name string, want int) ([]float64, error) {
	t, ok := sd[name]
	if !ok {
		return nil, fmt.Errorf("state dict is missing %s", name)
	}

	if len(t.Data) != want {
		return nil, fmt.Errorf("%s has length %d, expected %d", name, len(t.Data), want)
	}

	return t.Data, nil
}

// squeeze drops leading unit dimensions, accommodating att vectors persisted
// as (1, heads, hidden).
func squeeze(shape []int) []int {
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}

	return shape
}
