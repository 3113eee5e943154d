// Package embedding provides sentence encoders for question and schema-node
// text. Encoders are deterministic for a given model and safe for concurrent
// use.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Provider defines the interface for embedding providers
type Provider interface {
	// Encode generates an embedding for the given text
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch generates embeddings for several texts in one call
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings produced by this provider
	Dimensions() int

	// Name returns the provider name for identification
	Name() string
}

// Config represents embedding provider configuration
type Config struct {
	Provider   string `json:"provider"`   // "hash" or "remote"
	Model      string `json:"model"`      // Model name/path
	Dimensions int    `json:"dimensions"` // Expected embedding dimensions
	BaseURL    string `json:"base_url"`   // Remote encoder endpoint
}

// DefaultNodeConfig returns the encoder configuration for schema-node text.
func DefaultNodeConfig() Config {
	return Config{
		Provider:   "hash",
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
	}
}

// DefaultQuestionConfig returns the encoder configuration for question text.
func DefaultQuestionConfig() Config {
	return Config{
		Provider:   "hash",
		Model:      "bert-base-uncased",
		Dimensions: 768,
	}
}

// NewProvider constructs a provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}

	switch cfg.Provider {
	case "", "hash":
		return NewHashProvider(cfg.Model, cfg.Dimensions), nil
	case "remote":
		return NewRemoteProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
