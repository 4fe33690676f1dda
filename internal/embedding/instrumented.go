package embedding

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"budget-rag/internal/metrics"
	"budget-rag/internal/models"
	"budget-rag/internal/retry"
)

// InstrumentedEmbedder bounds every call with a timeout and a retry budget,
// and records metrics and logs
type InstrumentedEmbedder struct {
	inner  Embedder
	policy retry.Policy
	logger *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with retries and observability
func NewInstrumentedEmbedder(inner Embedder, policy retry.Policy, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:  inner,
		policy: policy,
		logger: logger,
	}
}

// Name returns the name of the wrapped embedder
func (p *InstrumentedEmbedder) Name() string { return p.inner.Name() }

// Embed delegates to the inner embedder. Every failure is returned as an
// *models.EmbeddingError.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	name := p.inner.Name()

	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		metrics.ProviderRetriesTotal.WithLabelValues(name, "embedding").Inc()
		p.logger.Warn("Retrying embedding request",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	start := time.Now()
	vec, err := retry.Do(ctx, policy, func(ctx context.Context) ([]float32, error) {
		return p.inner.Embed(ctx, text)
	})
	duration := time.Since(start)

	metrics.EmbeddingRequestsTotal.WithLabelValues(name, metrics.Status(err)).Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		var embErr *models.EmbeddingError
		if !errors.As(err, &embErr) {
			err = &models.EmbeddingError{Provider: name, Err: err}
		}
		p.logger.Error("Embedding request failed",
			zap.String("provider", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", name),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(vec)),
	)
	return vec, nil
}
