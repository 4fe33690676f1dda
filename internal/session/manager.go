package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"budget-rag/internal/embedding"
	"budget-rag/internal/metrics"
	"budget-rag/internal/models"
	"budget-rag/internal/retriever"
	"budget-rag/internal/vectorstore"
)

// StoreFactory returns the vector store of a session
type StoreFactory func(sessionID string) vectorstore.Store

// MemoryStores gives every session its own in-memory vector store
func MemoryStores(string) vectorstore.Store { return vectorstore.NewMemory() }

// Manager creates and tracks sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	embedder      embedding.Embedder
	stores        StoreFactory
	maxConcurrent int
	logger        *zap.Logger
}

// NewManager creates a session manager. A nil embedder disables retrieval
// mode for its sessions.
func NewManager(embedder embedding.Embedder, stores StoreFactory, maxConcurrent int, logger *zap.Logger) *Manager {
	if stores == nil {
		stores = MemoryStores
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		embedder:      embedder,
		stores:        stores,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Create opens a session with a new random id
func (m *Manager) Create() *Session {
	return m.Open(uuid.NewString())
}

// Open returns the session with the given id, creating it when needed
func (m *Manager) Open(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}

	var r *retriever.Retriever
	if m.embedder != nil {
		r = retriever.New(m.embedder, m.stores(id), m.maxConcurrent, m.logger.With(zap.String("session", id)))
	}

	s := New(id, r)
	m.sessions[id] = s
	metrics.ActiveSessions.Inc()

	m.logger.Debug("Session opened", zap.String("session", id))
	return s
}

// Get returns an open session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return s, nil
}

// Reset clears an open session and keeps it open
func (m *Manager) Reset(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Reset(ctx)
}

// Close clears a session and forgets it
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	m.mu.Unlock()

	if !ok {
		return models.ErrSessionNotFound
	}

	m.logger.Debug("Session closed", zap.String("session", id))
	return s.Reset(ctx)
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
