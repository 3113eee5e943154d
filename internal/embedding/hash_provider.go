package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashProvider derives a deterministic unit vector from a SHA-256 expansion
// of the input text. It stands in for a real sentence-transformer model in
// environments without one: same text, same model name, same vector, so
// cached scores and tests stay stable.
type HashProvider struct {
	model string
	dims  int
}

// NewHashProvider creates a hash-based encoder of the given dimensionality.
func NewHashProvider(model string, dims int) *HashProvider {
	return &HashProvider{model: model, dims: dims}
}

// Encode generates the deterministic embedding for text.
func (p *HashProvider) Encode(_ context.Context, text string) ([]float32, error) {
	return p.vector(text), nil
}

// EncodeBatch generates embeddings for several texts.
func (p *HashProvider) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}

	return out, nil
}

// Dimensions returns the embedding dimensionality.
func (p *HashProvider) Dimensions() int {
	return p.dims
}

// Name returns the provider name.
func (p *HashProvider) Name() string {
	return "hash:" + p.model
}

// vector expands SHA-256 counter-mode output into dims values in [-1, 1] and
// L2-normalizes the result.
func (p *HashProvider) vector(text string) []float32 {
	seed := sha256.Sum256([]byte(p.model + "\x00" + text))

	vec := make([]float32, p.dims)

	var block [40]byte

	copy(block[:32], seed[:])

	var norm float64

	for i := range p.dims {
		binary.BigEndian.PutUint64(block[32:], uint64(i))
		digest := sha256.Sum256(block[:])
		raw := binary.BigEndian.Uint64(digest[:8])

		// Map to [-1, 1).
		v := float64(raw)/float64(math.MaxUint64)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec
}
