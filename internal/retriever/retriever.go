// Package retriever indexes chunk embeddings and finds the chunks most
// relevant to a question.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"budget-rag/internal/embedding"
	"budget-rag/internal/models"
	"budget-rag/internal/vectorstore"
)

// Retriever embeds chunks into a vector store and queries it
type Retriever struct {
	embedder      embedding.Embedder
	store         vectorstore.Store
	maxConcurrent int
	logger        *zap.Logger
}

// New creates a retriever. maxConcurrent bounds the parallel embedding
// requests issued while indexing a document.
func New(embedder embedding.Embedder, store vectorstore.Store, maxConcurrent int, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder:      embedder,
		store:         store,
		maxConcurrent: max(maxConcurrent, 1),
		logger:        logger,
	}
}

// Index embeds every chunk of a document and then replaces the document's
// vectors in one call. When any embedding fails nothing is replaced.
func (r *Retriever) Index(ctx context.Context, documentID string, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedding.EmbedBatch(ctx, r.embedder, texts, r.maxConcurrent, nil)
	if err != nil {
		return asEmbeddingError(r.embedder.Name(), err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i := range chunks {
		records[i] = vectorstore.Record{Chunk: chunks[i], Vector: vectors[i]}
	}

	if err := r.store.Upsert(ctx, documentID, records); err != nil {
		return fmt.Errorf("failed to store vectors for %s: %w", documentID, err)
	}

	r.logger.Debug("Indexed document",
		zap.String("document", documentID),
		zap.Int("chunks", len(chunks)),
		zap.String("embedder", r.embedder.Name()),
	)
	return nil
}

// Query returns at most k chunks ordered by similarity to the question,
// highest first. Equal scores keep ingestion order.
func (r *Retriever) Query(ctx context.Context, question string, k int) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question is empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("invalid k %d", k)
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, asEmbeddingError(r.embedder.Name(), err)
	}

	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	slices.SortStableFunc(results, vectorstore.CompareScored)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Remove deletes the vectors of a document
func (r *Retriever) Remove(ctx context.Context, documentID string) error {
	return r.store.DeleteDocument(ctx, documentID)
}

// Reset deletes every vector
func (r *Retriever) Reset(ctx context.Context) error {
	return r.store.Clear(ctx)
}

func asEmbeddingError(provider string, err error) error {
	var embErr *models.EmbeddingError
	if errors.As(err, &embErr) {
		return err
	}
	return &models.EmbeddingError{Provider: provider, Err: err}
}
