package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client implements Service over HTTP for the supported providers. The only
// shared state is the HTTP client, so one Client serves concurrent requests.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client for the given provider configuration. BaseURL
// defaults follow the provider.
func NewClient(config Config) (*Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("API key is required for OpenAI provider")
		}

		if config.BaseURL == "" {
			config.BaseURL = "https://api.openai.com/v1"
		}
	case ProviderAnthropic:
		if config.APIKey == "" {
			return nil, fmt.Errorf("API key is required for Anthropic provider")
		}

		if config.BaseURL == "" {
			config.BaseURL = "https://api.anthropic.com/v1"
		}
	case ProviderOllama, ProviderLocal:
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}

	return &Client{
		config: config,
		// Per-call deadlines come from Options; this is only a hard upper
		// bound against leaked connections.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// GenerateJSON sends the prompt and parses the response into a JSON object.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, opts Options) (map[string]any, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)

		defer cancel()
	}

	var (
		text string
		err  error
	)

	switch c.config.Provider {
	case ProviderOpenAI:
		text, err = c.generateOpenAI(ctx, prompt, opts)
	case ProviderAnthropic:
		text, err = c.generateAnthropic(ctx, prompt, opts)
	case ProviderOllama, ProviderLocal:
		text, err = c.generateOllama(ctx, prompt, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}

	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrRefusal)
	}

	parsed, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return parsed, nil
}

// OpenAI API structures
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []chatMessage         `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) generateOpenAI(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := openAIRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   opts.MaxTokens,
	}

	if opts.JSONMode {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	respBody, err := c.post(ctx, "/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrRefusal)
	}

	if response.Choices[0].FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: content filtered", ErrRefusal)
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) generateAnthropic(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	reqBody := anthropicRequest{
		Model:     c.config.Model,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	respBody, err := c.post(ctx, "/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, response.Error.Message)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("%w: no content returned", ErrRefusal)
	}

	return response.Content[0].Text, nil
}

// Ollama API structures
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) generateOllama(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
	}

	if opts.JSONMode {
		reqBody.Format = "json"
	}

	respBody, err := c.post(ctx, "/api/generate", reqBody, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	if response.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, response.Error)
	}

	return response.Response, nil
}

// post makes an HTTP request against the provider. Transport-level and
// non-200 failures map to ErrUnavailable.
func (c *Client) post(ctx context.Context, endpoint string, reqBody any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	return body, nil
}
