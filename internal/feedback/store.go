// Package feedback persists accepted (question, sql) pairs and retrieves
// similar ones for few-shot prompting. Storage is DuckDB; similarity is
// cosine distance over question embeddings.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/ashmay29/NL2SQL/internal/embedding"
)

// Example is one retrieved feedback pair.
type Example struct {
	Question string
	SQL      string
	Score    float64
}

// Store is the narrow RAG collaborator. The pipeline tolerates a nil store.
type Store interface {
	Record(ctx context.Context, question, sqlText, fingerprint string) error
	Similar(ctx context.Context, question, fingerprint string, k int) ([]Example, error)
	Close() error
}

// DuckDBStore implements Store on an embedded DuckDB database.
type DuckDBStore struct {
	db      *sql.DB
	encoder embedding.Provider
}

// NewDuckDBStore opens (creating if needed) the feedback database at dbPath.
func NewDuckDBStore(dbPath string, encoder embedding.Provider) (*DuckDBStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &DuckDBStore{db: db, encoder: encoder}
	if err := store.initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *DuckDBStore) initialize(ctx context.Context) error {
	const createSQL = `
	CREATE TABLE IF NOT EXISTS feedback (
		id VARCHAR PRIMARY KEY,
		question TEXT NOT NULL,
		sql_text TEXT NOT NULL,
		schema_fingerprint VARCHAR NOT NULL,
		question_embedding TEXT NOT NULL,
		created_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_fingerprint ON feedback (schema_fingerprint);`

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to initialize feedback schema: %w", err)
	}

	return nil
}

// Record stores an accepted pair together with its question embedding.
func (s *DuckDBStore) Record(ctx context.Context, question, sqlText, fingerprint string) error {
	vec, err := s.encoder.Encode(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to embed question: %w", err)
	}

	embJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	const insertSQL = `
	INSERT INTO feedback (id, question, sql_text, schema_fingerprint, question_embedding, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, insertSQL,
		uuid.New().String(), question, sqlText, fingerprint, string(embJSON), time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	return nil
}

// Similar returns up to k pairs for the same schema fingerprint, ranked by
// cosine similarity of the question embeddings.
func (s *DuckDBStore) Similar(ctx context.Context, question, fingerprint string, k int) ([]Example, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := s.encoder.Encode(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	const selectSQL = `
	SELECT question, sql_text, question_embedding
	FROM feedback
	WHERE schema_fingerprint = ?`

	rows, err := s.db.QueryContext(ctx, selectSQL, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var candidates []Example

	for rows.Next() {
		var (
			q, sqlText, embJSON string
		)

		if err := rows.Scan(&q, &sqlText, &embJSON); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue // Skip rows with corrupt embeddings.
		}

		candidates = append(candidates, Example{
			Question: q,
			SQL:      sqlText,
			Score:    cosineSimilarity(queryVec, vec),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback rows: %w", err)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

// Close releases the database handle.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
