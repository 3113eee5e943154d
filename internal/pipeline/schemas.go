package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ashmay29/NL2SQL/internal/cache"
	"github.com/ashmay29/NL2SQL/internal/types"
)

// SchemaProvider resolves a database id to its ingested schema. The ingestion
// collaborator feeds it; the pipeline only reads.
type SchemaProvider interface {
	Get(ctx context.Context, databaseID string) (*types.Schema, error)
}

// Registry is an in-memory SchemaProvider with a write-through fingerprint
// cache.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*types.Schema
	cache   cache.SchemaCache
	cacheTTL time.Duration
}

// NewRegistry creates a registry. The cache may be nil.
func NewRegistry(schemaCache cache.SchemaCache, ttl time.Duration) *Registry {
	return &Registry{
		byID:     make(map[string]*types.Schema),
		cache:    schemaCache,
		cacheTTL: ttl,
	}
}

// Register stamps and stores a schema under its database id.
func (r *Registry) Register(ctx context.Context, databaseID string, schema *types.Schema) {
	schema.Stamp()

	r.mu.Lock()
	r.byID[databaseID] = schema
	r.mu.Unlock()

	if r.cache != nil {
		_ = r.cache.Put(ctx, schema.Version, schema, r.cacheTTL)
	}
}

// Get returns the schema for a database id, or a SchemaMissing error.
func (r *Registry) Get(_ context.Context, databaseID string) (*types.Schema, error) {
	r.mu.RLock()
	schema, ok := r.byID[databaseID]
	r.mu.RUnlock()

	if !ok {
		return nil, NewError(KindSchemaMissing, "no schema is ingested for database "+databaseID)
	}

	return schema, nil
}

// GetByFingerprint serves cached schemas by version fingerprint.
func (r *Registry) GetByFingerprint(ctx context.Context, fingerprint string) (*types.Schema, bool) {
	if r.cache == nil {
		return nil, false
	}

	schema, ok, err := r.cache.Get(ctx, fingerprint)
	if err != nil || !ok {
		return nil, false
	}

	return schema, true
}
