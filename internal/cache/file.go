package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashmay29/NL2SQL/internal/types"
)

// FileCache persists schemas on disk so a restart does not force re-ingestion.
// Each entry is a pair of files: <hash>.data holding the schema JSON and
// <hash>.meta holding expiry metadata.
type FileCache struct {
	directory  string
	defaultTTL time.Duration

	mu sync.Mutex
}

type fileMeta struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewFileCache creates a file-backed schema cache rooted at directory.
func NewFileCache(directory string, defaultTTL time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	return &FileCache{directory: directory, defaultTTL: defaultTTL}, nil
}

// Get reads the cached schema for a fingerprint, removing it when expired.
func (c *FileCache) Get(ctx context.Context, fingerprint string) (*types.Schema, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	metaData, err := os.ReadFile(c.metaPath(fingerprint))
	if err != nil {
		return nil, false, nil
	}

	var meta fileMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		c.removeLocked(fingerprint)
		return nil, false, nil
	}

	if time.Now().After(meta.ExpiresAt) {
		c.removeLocked(fingerprint)
		return nil, false, nil
	}

	data, err := os.ReadFile(c.dataPath(fingerprint))
	if err != nil {
		return nil, false, nil
	}

	var schema types.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		c.removeLocked(fingerprint)
		return nil, false, fmt.Errorf("corrupt cache entry for %s: %w", fingerprint, err)
	}

	return &schema, true, nil
}

// Put writes the schema and its metadata.
func (c *FileCache) Put(ctx context.Context, fingerprint string, schema *types.Schema, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	meta := fileMeta{
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(ttl),
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.WriteFile(c.dataPath(fingerprint), data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache data: %w", err)
	}

	if err := os.WriteFile(c.metaPath(fingerprint), metaData, 0o600); err != nil {
		os.Remove(c.dataPath(fingerprint))
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}

	return nil
}

// Delete drops a fingerprint.
func (c *FileCache) Delete(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(fingerprint)

	return nil
}

// Cleanup removes every expired entry.
func (c *FileCache) Cleanup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta") {
			continue
		}

		metaData, err := os.ReadFile(filepath.Join(c.directory, entry.Name()))
		if err != nil {
			continue
		}

		var meta fileMeta
		if err := json.Unmarshal(metaData, &meta); err != nil {
			continue
		}

		if now.After(meta.ExpiresAt) {
			base := strings.TrimSuffix(entry.Name(), ".meta")
			os.Remove(filepath.Join(c.directory, base+".data"))
			os.Remove(filepath.Join(c.directory, base+".meta"))
		}
	}

	return nil
}

func (c *FileCache) removeLocked(fingerprint string) {
	os.Remove(c.dataPath(fingerprint))
	os.Remove(c.metaPath(fingerprint))
}

func (c *FileCache) dataPath(fingerprint string) string {
	return filepath.Join(c.directory, c.hashKey(fingerprint)+".data")
}

func (c *FileCache) metaPath(fingerprint string) string {
	return filepath.Join(c.directory, c.hashKey(fingerprint)+".meta")
}

// hashKey derives a safe filename from a fingerprint.
func (c *FileCache) hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
