// Package vectorstore holds chunk embeddings and answers similarity queries.
package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"budget-rag/internal/models"
)

// Record is a chunk with its embedding
type Record struct {
	Chunk  models.Chunk
	Vector []float32
}

// Store persists vectors per document and supports similarity search.
// Upsert replaces every vector of a document in one step.
type Store interface {
	Upsert(ctx context.Context, documentID string, records []Record) error
	Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
}

// Memory is an in-memory vector store using brute-force cosine similarity
type Memory struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string][]Record
	// position is the upsert order of each document
	position map[string]int64
	next     int64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]Record), position: make(map[string]int64)}
}

// Upsert replaces the vectors of a document
func (m *Memory) Upsert(_ context.Context, documentID string, records []Record) error {
	dim := 0
	for _, r := range records {
		if r.Chunk.DocumentID != documentID {
			return fmt.Errorf("record %q belongs to document %q, not %q", r.Chunk.ID, r.Chunk.DocumentID, documentID)
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch for record %q", r.Chunk.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dim > 0 && m.dimension > 0 && dim != m.dimension && len(m.others(documentID)) > 0 {
		return fmt.Errorf("vector dimension %d does not match store dimension %d", dim, m.dimension)
	}
	if dim > 0 {
		m.dimension = dim
	}

	if len(records) == 0 {
		delete(m.docs, documentID)
		delete(m.position, documentID)
		return nil
	}
	m.docs[documentID] = slices.Clone(records)
	m.position[documentID] = m.next
	m.next++
	return nil
}

// others returns the ids of stored documents other than id
func (m *Memory) others(id string) []string {
	var ids []string
	for k := range m.docs {
		if k != id {
			ids = append(ids, k)
		}
	}
	return ids
}

// Search returns at most k chunks ordered by cosine similarity descending.
// Equal scores are ordered by chunk ordinal, then by upsert order of the
// document and the position of the chunk within it.
func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension > 0 && len(vector) != m.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vector), m.dimension)
	}

	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int { return cmp.Compare(m.position[a], m.position[b]) })

	var results []models.ScoredChunk
	for _, id := range ids {
		for _, r := range m.docs[id] {
			results = append(results, models.ScoredChunk{Chunk: r.Chunk, Score: Cosine(vector, r.Vector)})
		}
	}

	slices.SortStableFunc(results, CompareScored)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteDocument removes the vectors of a document
func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	delete(m.position, documentID)
	return nil
}

// Clear removes every vector
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string][]Record)
	m.position = make(map[string]int64)
	m.dimension = 0
	return nil
}

// Len returns the number of stored vectors
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, records := range m.docs {
		n += len(records)
	}
	return n
}

// CompareScored orders results by score descending, then ordinal ascending
func CompareScored(a, b models.ScoredChunk) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.Ordinal, b.Chunk.Ordinal)
}

// Cosine returns the cosine similarity of two vectors, 0 when either is zero
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
