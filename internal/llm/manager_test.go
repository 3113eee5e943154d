package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedService returns canned results per call.
type scriptedService struct {
	calls   int
	results []func() (map[string]any, error)
}

func (s *scriptedService) GenerateJSON(_ context.Context, _ string, _ Options) (map[string]any, error) {
	idx := s.calls
	s.calls++

	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}

	return s.results[idx]()
}

func TestManagerRetriesUnavailable(t *testing.T) {
	svc := &scriptedService{results: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, fmt.Errorf("%w: 502", ErrUnavailable) },
		func() (map[string]any, error) { return nil, fmt.Errorf("%w: 502", ErrUnavailable) },
		func() (map[string]any, error) { return map[string]any{"ok": true}, nil },
	}}

	mgr := NewManager(svc, ManagerConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})

	out, err := mgr.GenerateJSON(context.Background(), "p", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, 3, svc.calls)
}

func TestManagerGivesUpAfterRetries(t *testing.T) {
	svc := &scriptedService{results: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, fmt.Errorf("%w: down", ErrUnavailable) },
	}}

	mgr := NewManager(svc, ManagerConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})

	_, err := mgr.GenerateJSON(context.Background(), "p", DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, svc.calls)
}

func TestManagerDoesNotRetryParseErrors(t *testing.T) {
	svc := &scriptedService{results: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, fmt.Errorf("%w: garbage", ErrParse) },
	}}

	mgr := NewManager(svc, ManagerConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})

	_, err := mgr.GenerateJSON(context.Background(), "p", DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, 1, svc.calls)
}

func TestManagerDoesNotRetryRefusals(t *testing.T) {
	svc := &scriptedService{results: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, fmt.Errorf("%w: blocked", ErrRefusal) },
	}}

	mgr := NewManager(svc, ManagerConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})

	_, err := mgr.GenerateJSON(context.Background(), "p", DefaultOptions())
	assert.ErrorIs(t, err, ErrRefusal)
	assert.Equal(t, 1, svc.calls)
}

func TestManagerHonorsCancellation(t *testing.T) {
	svc := &scriptedService{results: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, fmt.Errorf("%w: down", ErrUnavailable) },
	}}

	mgr := NewManager(svc, ManagerConfig{RetryAttempts: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := mgr.GenerateJSON(ctx, "p", DefaultOptions())
	require.Error(t, err)
	assert.Equal(t, 1, svc.calls)
}
