// Package session holds the per-conversation state: loaded documents,
// their vectors, the chat history and which documents were referenced
// most recently.
package session

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"budget-rag/internal/models"
	"budget-rag/internal/retriever"
	"budget-rag/internal/store"
)

// Session is the state of one conversation. Nothing in it is shared with
// other sessions.
type Session struct {
	ID        string
	Store     *store.DocumentStore
	Retriever *retriever.Retriever
	CreatedAt time.Time

	mu      sync.Mutex
	history []models.Turn
	refs    map[string]int64
	tick    int64
	ordinal int64
}

// New creates an empty session
func New(id string, r *retriever.Retriever) *Session {
	return &Session{
		ID:        id,
		Store:     store.New(),
		Retriever: r,
		CreatedAt: time.Now(),
		refs:      make(map[string]int64),
	}
}

// AddDocument indexes the chunks of a document and then stores it, so a
// document is only visible once it is fully searchable. Chunks get
// session-wide ordinals that keep ingestion order across documents.
func (s *Session) AddDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	s.mu.Lock()
	base := s.ordinal
	s.ordinal += int64(len(chunks))
	s.mu.Unlock()

	chunks = slices.Clone(chunks)
	for i := range chunks {
		chunks[i].Ordinal = base + int64(i)
	}

	if s.Retriever != nil {
		if err := s.Retriever.Index(ctx, doc.ID, chunks); err != nil {
			return err
		}
	}

	if err := s.Store.Put(doc, chunks); err != nil {
		return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}

	s.Touch(doc.ID)
	return nil
}

// Restore puts a document whose vectors are already persisted back into
// the session without indexing it again
func (s *Session) Restore(doc *models.Document, chunks []models.Chunk) error {
	if err := s.Store.Put(doc, chunks); err != nil {
		return fmt.Errorf("failed to restore document %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	for _, c := range chunks {
		s.ordinal = max(s.ordinal, c.Ordinal+1)
	}
	s.mu.Unlock()

	s.Touch(doc.ID)
	return nil
}

// RemoveDocument deletes a document and its vectors. It reports whether
// the document was loaded.
func (s *Session) RemoveDocument(ctx context.Context, id string) (bool, error) {
	if s.Retriever != nil {
		if err := s.Retriever.Remove(ctx, id); err != nil {
			return false, fmt.Errorf("failed to remove vectors of %s: %w", id, err)
		}
	}

	s.mu.Lock()
	delete(s.refs, id)
	s.mu.Unlock()

	return s.Store.Delete(id), nil
}

// Touch marks documents as referenced now. Documents touched together
// share the same recency.
func (s *Session) Touch(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	for _, id := range ids {
		s.refs[id] = s.tick
	}
}

// DocumentsByRecency returns the loaded documents, most recently
// referenced first. Ties keep ingestion order.
func (s *Session) DocumentsByRecency() []*models.Document {
	docs := s.Store.Documents()

	s.mu.Lock()
	refs := make(map[string]int64, len(s.refs))
	for k, v := range s.refs {
		refs[k] = v
	}
	s.mu.Unlock()

	slices.SortStableFunc(docs, func(a, b *models.Document) int {
		return cmp.Compare(refs[b.ID], refs[a.ID])
	})
	return docs
}

// Record appends a question and its answer to the history
func (s *Session) Record(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		models.Turn{Role: models.RoleUser, Text: question},
		models.Turn{Role: models.RoleAssistant, Text: answer},
	)
}

// History returns a copy of the conversation so far
func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Reset drops every document, vector and turn of the session
func (s *Session) Reset(ctx context.Context) error {
	if s.Retriever != nil {
		if err := s.Retriever.Reset(ctx); err != nil {
			return fmt.Errorf("failed to clear vectors: %w", err)
		}
	}
	s.Store.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.refs = make(map[string]int64)
	s.tick = 0
	s.ordinal = 0
	return nil
}
