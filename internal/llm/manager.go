package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ashmay29/NL2SQL/internal/logging"
)

// Manager wraps a Service with transient-failure retries. Only transport
// failures retry; parse errors and refusals surface immediately so the caller
// can apply its own recovery (a correction prompt, for example).
type Manager struct {
	service Service
	config  ManagerConfig
}

// ManagerConfig configures retry behavior.
type ManagerConfig struct {
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// DefaultManagerConfig returns the standard retry settings: two retries with
// exponential backoff starting at one second.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RetryAttempts: 2,
		RetryDelay:    time.Second,
	}
}

// NewManager wraps the given service.
func NewManager(service Service, config ManagerConfig) *Manager {
	return &Manager{service: service, config: config}
}

// GenerateJSON delegates to the underlying service, retrying unavailable
// providers with exponential backoff.
func (m *Manager) GenerateJSON(ctx context.Context, prompt string, opts Options) (map[string]any, error) {
	var lastErr error

	delay := m.config.RetryDelay

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			logging.Warnf("LLM call failed, retrying (attempt %d/%d): %v",
				attempt, m.config.RetryAttempts, lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}

			delay *= 2
		}

		result, err := m.service.GenerateJSON(ctx, prompt, opts)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !errors.Is(err, ErrUnavailable) {
			break
		}
	}

	return nil, lastErr
}
