package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newOpenAIClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		Provider: ProviderOpenAI,
		Model:    "gpt-4",
		APIKey:   "test-key",
		BaseURL:  baseURL,
	})
	require.NoError(t, err)

	return client
}

func TestGenerateJSONOpenAI(t *testing.T) {
	server := openAIServer(t, `{"from_table": "customers", "confidence": 0.9}`)
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	result, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "customers", result["from_table"])
	assert.Equal(t, 0.9, result["confidence"])
}

func TestGenerateJSONExtractsFromProse(t *testing.T) {
	server := openAIServer(t, "Here is the IR you asked for:\n```json\n{\"from_table\": \"orders\"}\n```\nLet me know!")
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	result, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "orders", result["from_table"])
}

func TestGenerateJSONParseError(t *testing.T) {
	server := openAIServer(t, "I cannot produce JSON for that, sorry.")
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	_, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestGenerateJSONUnavailableOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	_, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGenerateJSONRefusalOnEmpty(t *testing.T) {
	server := openAIServer(t, "   ")
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	_, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	assert.ErrorIs(t, err, ErrRefusal)
}

func TestGenerateJSONAnthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		resp := map[string]any{
			"content": []map[string]any{{"type": "text", "text": `{"from_table": "products"}`}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Provider: ProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
		APIKey:   "test-key",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)

	result, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "products", result["from_table"])
}

func TestGenerateJSONOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: `{"from_table": "orders"}`, Done: true})
	}))
	defer server.Close()

	client, err := NewClient(Config{Provider: ProviderOllama, Model: "mistral", BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "orders", result["from_table"])
}

func TestGenerateJSONCancellation(t *testing.T) {
	started := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())

	var (
		wg  sync.WaitGroup
		err error
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, err = client.GenerateJSON(ctx, "prompt", Options{Timeout: time.Minute})
	}()

	<-started
	cancel()
	wg.Wait()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGenerateJSONTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	start := time.Now()
	_, err := client.GenerateJSON(context.Background(), "prompt", Options{Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Provider: ProviderOpenAI, Model: "gpt-4"})
	require.Error(t, err, "missing API key")

	_, err = NewClient(Config{Provider: ProviderOpenAI, APIKey: "k"})
	require.Error(t, err, "missing model")

	_, err = NewClient(Config{Provider: "carrier-pigeon", Model: "m"})
	require.Error(t, err, "unknown provider")

	client, err := NewClient(Config{Provider: ProviderOllama, Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", client.config.BaseURL)
}

func TestConcurrentCalls(t *testing.T) {
	server := openAIServer(t, `{"ok": true}`)
	defer server.Close()

	client := newOpenAIClient(t, server.URL)

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := client.GenerateJSON(context.Background(), "prompt", DefaultOptions())
			assert.NoError(t, err)
			assert.Equal(t, true, result["ok"])
		}()
	}

	wg.Wait()
}
