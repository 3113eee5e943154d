// Package cache provides the fingerprint-keyed schema cache. Both backends
// honor the same narrow contract: Get, Put with TTL, Delete. The pipeline
// tolerates a nil cache.
package cache

import (
	"context"
	"time"

	"github.com/ashmay29/NL2SQL/internal/types"
)

// SchemaCache is the narrow schema-store collaborator keyed by fingerprint.
type SchemaCache interface {
	Get(ctx context.Context, fingerprint string) (*types.Schema, bool, error)
	Put(ctx context.Context, fingerprint string, schema *types.Schema, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
}

// Stats tracks cache effectiveness.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}
