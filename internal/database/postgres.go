// Package database persists chunk embeddings in PostgreSQL with pgvector.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"budget-rag/internal/models"
	"budget-rag/internal/vectorstore"
)

// DB represents the database connection
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize sets up the vector extension, the chunk table and its indices
func (db *DB) Initialize(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("invalid vector dimensions %d", dimensions)
	}

	if _, err := db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunk_vectors (
			namespace   TEXT NOT NULL,
			chunk_id    TEXT NOT NULL,
			document_id TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			total_pages INTEGER NOT NULL,
			sequence    INTEGER NOT NULL,
			ordinal     BIGINT NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			position    BIGSERIAL,
			PRIMARY KEY (namespace, chunk_id)
		)
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create chunk_vectors table: %w", err)
	}

	// tables created before position existed
	if _, err := db.Pool.Exec(ctx, `ALTER TABLE chunk_vectors ADD COLUMN IF NOT EXISTS position BIGSERIAL`); err != nil {
		return fmt.Errorf("failed to add position column: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunk_vectors_embedding_idx ON chunk_vectors
		USING hnsw (embedding vector_cosine_ops)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunk_vectors_document_idx ON chunk_vectors (namespace, document_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	return nil
}

// Namespace returns a vector store scoped to one namespace, usually a session id
func (db *DB) Namespace(namespace string) *PGStore {
	return &PGStore{pool: db.Pool, namespace: namespace}
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}

// PGStore is a vector store persisted in the chunk_vectors table
type PGStore struct {
	pool      *pgxpool.Pool
	namespace string
}

var _ vectorstore.Store = (*PGStore)(nil)

// Upsert replaces every vector of a document in a single transaction
func (s *PGStore) Upsert(ctx context.Context, documentID string, records []vectorstore.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chunk_vectors WHERE namespace = $1 AND document_id = $2`,
		s.namespace, documentID); err != nil {
		return fmt.Errorf("failed to delete previous vectors: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if r.Chunk.DocumentID != documentID {
			return fmt.Errorf("record %q belongs to document %q, not %q", r.Chunk.ID, r.Chunk.DocumentID, documentID)
		}
		batch.Queue(`
			INSERT INTO chunk_vectors (
				namespace, chunk_id, document_id, page_number, total_pages,
				sequence, ordinal, content, embedding
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			s.namespace,
			r.Chunk.ID,
			r.Chunk.DocumentID,
			r.Chunk.PageNumber,
			r.Chunk.TotalPages,
			r.Chunk.Sequence,
			r.Chunk.Ordinal,
			r.Chunk.Text,
			pgvector.NewVector(r.Vector))
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit vectors: %w", err)
	}
	return nil
}

// Search finds the chunks closest to the query embedding. Equal distances
// are ordered by ordinal, then insertion order.
func (s *PGStore) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, document_id, page_number, total_pages, sequence, ordinal, content,
		       1 - (embedding <=> $2) AS score
		FROM chunk_vectors
		WHERE namespace = $1
		ORDER BY embedding <=> $2, ordinal, position
		LIMIT $3
	`, s.namespace, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}

	return collectRows(rows, func(row pgx.CollectableRow) (models.ScoredChunk, error) {
		var sc models.ScoredChunk
		err := row.Scan(
			&sc.Chunk.ID,
			&sc.Chunk.DocumentID,
			&sc.Chunk.PageNumber,
			&sc.Chunk.TotalPages,
			&sc.Chunk.Sequence,
			&sc.Chunk.Ordinal,
			&sc.Chunk.Text,
			&sc.Score)
		return sc, err
	})
}

// Chunks returns every stored chunk of the namespace in ordinal order
func (s *PGStore) Chunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, document_id, page_number, total_pages, sequence, ordinal, content
		FROM chunk_vectors
		WHERE namespace = $1
		ORDER BY ordinal, position
	`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	return collectRows(rows, func(row pgx.CollectableRow) (models.Chunk, error) {
		var c models.Chunk
		err := row.Scan(&c.ID, &c.DocumentID, &c.PageNumber, &c.TotalPages, &c.Sequence, &c.Ordinal, &c.Text)
		return c, err
	})
}

// DeleteDocument removes the vectors of a document
func (s *PGStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE namespace = $1 AND document_id = $2`,
		s.namespace, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// Clear removes every vector of the namespace
func (s *PGStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE namespace = $1`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace %q: %w", s.namespace, err)
	}
	return nil
}

func collectRows[T any](rows pgx.Rows, fn pgx.RowToFunc[T]) ([]T, error) {
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return out, nil
}
