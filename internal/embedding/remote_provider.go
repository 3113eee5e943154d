package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteProvider calls an HTTP embedding endpoint. The endpoint is expected
// to accept {"model": ..., "texts": [...]} and return {"embeddings": [[...]]}.
type RemoteProvider struct {
	config     Config
	httpClient *http.Client
}

type remoteRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type remoteResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewRemoteProvider creates an encoder backed by a remote endpoint.
func NewRemoteProvider(cfg Config) (*RemoteProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required for remote embedding provider")
	}

	return &RemoteProvider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Encode generates an embedding for a single text.
func (p *RemoteProvider) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vecs[0], nil
}

// EncodeBatch generates embeddings for several texts in one request.
func (p *RemoteProvider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(remoteRequest{Model: p.config.Model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("encoder request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse encoder response: %w", err)
	}

	if parsed.Error != "" {
		return nil, fmt.Errorf("encoder error: %s", parsed.Error)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d embeddings for %d texts", len(parsed.Embeddings), len(texts))
	}

	for _, vec := range parsed.Embeddings {
		if len(vec) != p.config.Dimensions {
			return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", p.config.Dimensions, len(vec))
		}
	}

	return parsed.Embeddings, nil
}

// Dimensions returns the embedding dimensionality.
func (p *RemoteProvider) Dimensions() int {
	return p.config.Dimensions
}

// Name returns the provider name.
func (p *RemoteProvider) Name() string {
	return "remote:" + p.config.Model
}
