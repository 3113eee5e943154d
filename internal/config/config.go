// Package config loads application configuration from an optional JSON file
// overlaid with NL2SQL_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	LLM          LLMConfig          `json:"llm"          envPrefix:"NL2SQL_"`
	Ranker       RankerConfig       `json:"ranker"       envPrefix:"NL2SQL_"`
	Pipeline     PipelineConfig     `json:"pipeline"     envPrefix:"NL2SQL_"`
	Conversation ConversationConfig `json:"conversation" envPrefix:"NL2SQL_"`
	Cache        CacheConfig        `json:"cache"        envPrefix:"NL2SQL_"`
	Feedback     FeedbackConfig     `json:"feedback"     envPrefix:"NL2SQL_"`
	Logging      LoggingConfig      `json:"logging"      envPrefix:"NL2SQL_"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider  string `json:"provider"   env:"LLM_PROVIDER"  envDefault:"ollama"`
	Model     string `json:"model"      env:"LLM_MODEL"     envDefault:"mistral"`
	APIKey    string `json:"api_key"    env:"LLM_API_KEY"`
	BaseURL   string `json:"base_url"   env:"LLM_BASE_URL"`
	TimeoutMS int    `json:"timeout_ms" env:"LLM_TIMEOUT_MS" envDefault:"30000"`
	MaxTokens int    `json:"max_tokens" env:"LLM_MAX_TOKENS" envDefault:"2048"`
}

// RankerConfig configures the GAT schema ranker.
type RankerConfig struct {
	WeightsPath   string `json:"weights_path"    env:"RANKER_WEIGHTS"        envDefault:"~/.config/nl2sql/best_model.json"`
	TopK          int    `json:"top_k"           env:"RANKER_TOP_K"          envDefault:"25"`
	TimeoutMS     int    `json:"timeout_ms"      env:"RANKER_TIMEOUT_MS"     envDefault:"5000"`
	NodeModel     string `json:"node_model"      env:"RANKER_NODE_MODEL"     envDefault:"sentence-transformers/all-MiniLM-L6-v2"`
	QuestionModel string `json:"question_model"  env:"RANKER_QUESTION_MODEL" envDefault:"bert-base-uncased"`
	EncoderURL    string `json:"encoder_url"     env:"RANKER_ENCODER_URL"`
}

// PipelineConfig bounds whole-pipeline behavior.
type PipelineConfig struct {
	TimeoutMS           int     `json:"timeout_ms"           env:"PIPELINE_TIMEOUT_MS"       envDefault:"60000"`
	MaxPromptColumns    int     `json:"max_prompt_columns"   env:"PIPELINE_MAX_PROMPT_COLS"  envDefault:"8"`
	MaxRAGExamples      int     `json:"max_rag_examples"     env:"PIPELINE_MAX_RAG_EXAMPLES" envDefault:"3"`
	ContextTurns        int     `json:"context_turns"        env:"PIPELINE_CONTEXT_TURNS"    envDefault:"2"`
	ClarifyBelow        float64 `json:"clarify_below"        env:"PIPELINE_CLARIFY_BELOW"    envDefault:"0.5"`
	Dialect             string  `json:"dialect"              env:"PIPELINE_DIALECT"          envDefault:"mysql"`
}

// ConversationConfig bounds the history store.
type ConversationConfig struct {
	MaxTurns   int `json:"max_turns"   env:"CONVERSATION_MAX_TURNS" envDefault:"5"`
	TTLSeconds int `json:"ttl_seconds" env:"CONVERSATION_TTL_SEC"   envDefault:"3600"`
}

// CacheConfig configures the schema cache.
type CacheConfig struct {
	Directory  string `json:"directory"   env:"CACHE_DIR"     envDefault:"~/.cache/nl2sql"`
	TTLSeconds int    `json:"ttl_seconds" env:"CACHE_TTL_SEC" envDefault:"3600"`
}

// FeedbackConfig configures the RAG feedback store.
type FeedbackConfig struct {
	DatabasePath string `json:"database_path" env:"FEEDBACK_DB_PATH" envDefault:"~/.config/nl2sql/feedback.db"`
	Enabled      bool   `json:"enabled"       env:"FEEDBACK_ENABLED" envDefault:"true"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"`
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/nl2sql/logs/app.log"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	config := &Config{}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Each nested struct carries envPrefix "NL2SQL_", so no global prefix is
	// added here.
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.expandPaths()

	return config, nil
}

func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	if config.Ranker.TopK <= 0 {
		return fmt.Errorf("ranker top_k must be positive: %d", config.Ranker.TopK)
	}

	if config.Pipeline.TimeoutMS <= 0 {
		return fmt.Errorf("pipeline timeout must be positive: %d", config.Pipeline.TimeoutMS)
	}

	if config.Pipeline.ClarifyBelow < 0 || config.Pipeline.ClarifyBelow > 1 {
		return fmt.Errorf("clarify_below must be in [0, 1]: %f", config.Pipeline.ClarifyBelow)
	}

	switch strings.ToLower(config.Pipeline.Dialect) {
	case "mysql", "ansi":
	default:
		return fmt.Errorf("unsupported dialect: %s", config.Pipeline.Dialect)
	}

	return nil
}

// LLMTimeout returns the per-call LLM timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutMS) * time.Millisecond
}

// RankerTimeout returns the advisory GAT timeout.
func (c *Config) RankerTimeout() time.Duration {
	return time.Duration(c.Ranker.TimeoutMS) * time.Millisecond
}

// PipelineTimeout returns the whole-pipeline wall-clock bound.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Pipeline.TimeoutMS) * time.Millisecond
}

func (c *Config) expandPaths() {
	c.Ranker.WeightsPath = ExpandPath(c.Ranker.WeightsPath)
	c.Cache.Directory = ExpandPath(c.Cache.Directory)
	c.Feedback.DatabasePath = ExpandPath(c.Feedback.DatabasePath)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("NL2SQL_CONFIG"); configPath != "" {
		return ExpandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "nl2sql", "config.json")
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}
