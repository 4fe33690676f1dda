// Package llm talks to the language models that write the answers.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"budget-rag/internal/metrics"
	"budget-rag/internal/models"
	"budget-rag/internal/retry"
)

// Params are the sampling settings of a generation request.
// Zero values are left to the provider.
type Params struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// Request is a single generation call
type Request struct {
	System  string
	History []models.Turn
	Prompt  string
	Params  Params
}

// Response is the text produced by a provider
type Response struct {
	Text         string
	Model        string
	FinishReason string
}

// Provider generates text from a prompt
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// statusError builds a GenerationError for an HTTP failure and marks
// rate limits and server errors as retryable
func statusError(provider string, status int, message string, retryAfter time.Duration) error {
	err := &models.GenerationError{Provider: provider, Status: status, Message: message}
	if status == http.StatusTooManyRequests || status >= 500 {
		return retry.Retryable(err, retryAfter)
	}
	return err
}

// parseRetryAfter reads a Retry-After header given in seconds
func parseRetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Instrumented bounds every generation with a per-attempt timeout and a
// retry budget, records metrics, and guarantees that failures are
// *models.GenerationError and successes are never blank
type Instrumented struct {
	inner  Provider
	policy retry.Policy
	logger *zap.Logger
}

// NewInstrumented wraps a provider
func NewInstrumented(inner Provider, policy retry.Policy, logger *zap.Logger) *Instrumented {
	return &Instrumented{inner: inner, policy: policy, logger: logger}
}

// Name returns the name of the wrapped provider
func (p *Instrumented) Name() string { return p.inner.Name() }

// Generate calls the wrapped provider with retries
func (p *Instrumented) Generate(ctx context.Context, req Request) (Response, error) {
	name := p.inner.Name()

	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		metrics.ProviderRetriesTotal.WithLabelValues(name, "generation").Inc()
		p.logger.Warn("Retrying generation request",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	start := time.Now()
	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (Response, error) {
		resp, err := p.inner.Generate(ctx, req)
		if err != nil {
			return Response{}, err
		}
		if strings.TrimSpace(resp.Text) == "" {
			return Response{}, &models.GenerationError{Provider: name, Message: "empty response text"}
		}
		return resp, nil
	})
	duration := time.Since(start)

	metrics.GenerationRequestsTotal.WithLabelValues(name, metrics.Status(err)).Inc()
	metrics.GenerationRequestDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		err = asGenerationError(name, err)
		p.logger.Error("Generation request failed",
			zap.String("provider", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return Response{}, err
	}

	p.logger.Debug("Generation request completed",
		zap.String("provider", name),
		zap.String("model", resp.Model),
		zap.Duration("duration", duration),
		zap.Int("answer_chars", len(resp.Text)),
	)
	return resp, nil
}

func asGenerationError(provider string, err error) error {
	var genErr *models.GenerationError
	if errors.As(err, &genErr) {
		return err
	}

	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timed out"
	}
	return &models.GenerationError{Provider: provider, Message: msg, Err: err}
}
