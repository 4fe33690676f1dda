// Package store keeps the documents and chunks loaded into a session.
package store

import (
	"fmt"
	"sync"

	"budget-rag/internal/models"
)

type entry struct {
	doc    *models.Document
	chunks []models.Chunk
}

// DocumentStore is an in-memory document store. Each document is replaced
// as a whole, so readers never observe a partially ingested document.
type DocumentStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates an empty store
func New() *DocumentStore {
	return &DocumentStore{entries: make(map[string]*entry)}
}

// Put stores a document with its chunks, replacing any previous version.
// A replaced document keeps its original ingestion position.
func (s *DocumentStore) Put(doc *models.Document, chunks []models.Chunk) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	for i := range chunks {
		if chunks[i].DocumentID != doc.ID {
			return fmt.Errorf("chunk %q belongs to document %q, not %q", chunks[i].ID, chunks[i].DocumentID, doc.ID)
		}
	}

	e := &entry{doc: doc, chunks: append([]models.Chunk(nil), chunks...)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.entries[doc.ID] = e

	return nil
}

// Get returns a document and a copy of its chunks
func (s *DocumentStore) Get(id string) (*models.Document, []models.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil, false
	}
	return e.doc, append([]models.Chunk(nil), e.chunks...), true
}

// GetAll returns every chunk ordered by document ingestion order, then sequence
func (s *DocumentStore) GetAll() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Chunk
	for _, id := range s.order {
		all = append(all, s.entries[id].chunks...)
	}
	return all
}

// Documents returns the stored documents in ingestion order
func (s *DocumentStore) Documents() []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.entries[id].doc)
	}
	return docs
}

// Delete removes a document and its chunks. It reports whether the document existed.
func (s *DocumentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes all documents
func (s *DocumentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.order = nil
}

// Len returns the number of stored documents
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ChunkCount returns the number of stored chunks
func (s *DocumentStore) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		n += len(e.chunks)
	}
	return n
}
