// Package rag answers questions about the documents loaded in a session.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"budget-rag/internal/llm"
	"budget-rag/internal/logger"
	"budget-rag/internal/metrics"
	"budget-rag/internal/models"
	"budget-rag/internal/session"
)

var (
	// ErrEmptyQuestion is returned for a blank question
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrInvalidMode is returned for an unknown answering mode
	ErrInvalidMode = errors.New("invalid mode")
)

// Config holds the answering defaults
type Config struct {
	System string
	Params llm.Params
	Mode   models.Mode
	TopK   int
}

// Service answers questions with an LLM grounded in session documents
type Service struct {
	provider llm.Provider
	prompts  *llm.PromptBuilder
	cfg      Config
	logger   *zap.Logger
}

// NewService creates an answering service
func NewService(provider llm.Provider, prompts *llm.PromptBuilder, cfg Config, logger *zap.Logger) *Service {
	if cfg.System == "" {
		cfg.System = llm.DefaultSystemPrompt
	}
	if !cfg.Mode.Valid() {
		cfg.Mode = models.ModeRetrieval
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Service{
		provider: provider,
		prompts:  prompts,
		cfg:      cfg,
		logger:   logger,
	}
}

// DefaultMode returns the mode used when a query does not name one
func (s *Service) DefaultMode() models.Mode { return s.cfg.Mode }

// Ask answers a question. The question and answer are appended to the
// session history, and the cited documents become the most recently
// referenced ones. Ask returns as soon as ctx is done.
func (s *Service) Ask(ctx context.Context, sess *session.Session, q models.Query) (*models.Answer, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("session", sess.ID))

	question := strings.TrimSpace(q.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	mode := q.Mode
	if mode == "" {
		mode = s.cfg.Mode
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if sess.Store.Len() == 0 {
		return nil, models.ErrNoDocuments
	}

	sources, err := s.sources(ctx, sess, mode, question, q.TopK)
	if err != nil {
		return nil, err
	}

	history := q.History
	if history == nil {
		history = sess.History()
	}

	req := llm.Request{
		System:  s.cfg.System,
		History: s.prompts.History(history),
		Prompt:  s.prompts.Build(question, sources),
		Params:  s.cfg.Params,
	}

	start := time.Now()
	resp, err := s.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	answer := &models.Answer{
		Text:      strings.TrimSpace(resp.Text),
		Mode:      mode,
		Model:     resp.Model,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	var overlapping bool
	answer.Provenance, overlapping = Cite(answer.Text, sources)
	answer.LowConfidence = !overlapping || IsNotEnoughInformation(answer.Text)

	confidence := "normal"
	if answer.LowConfidence {
		confidence = "low"
		log.Warn("Low confidence answer",
			zap.String("question", question),
			zap.String("mode", string(mode)),
			zap.Bool("context_overlap", overlapping),
		)
	}
	metrics.AnswersTotal.WithLabelValues(string(mode), confidence).Inc()

	sess.Record(question, answer.Text)
	cited := make([]string, 0, len(answer.Provenance))
	for _, p := range answer.Provenance {
		cited = append(cited, p.DocumentID)
	}
	sess.Touch(cited...)

	log.Info("Question answered",
		zap.String("mode", string(mode)),
		zap.Int("sources", len(sources)),
		zap.Int("citations", len(answer.Provenance)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

func (s *Service) sources(ctx context.Context, sess *session.Session, mode models.Mode, question string, topK int) ([]llm.Source, error) {
	if mode == models.ModeWhole {
		return s.prompts.WholeSources(sess.DocumentsByRecency()), nil
	}

	if sess.Retriever == nil {
		return nil, &models.ConfigurationError{Field: "embedding.provider", Reason: "retrieval mode needs an embedding provider"}
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	results, err := sess.Retriever.Query(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	return s.prompts.RetrievalSources(results), nil
}

// generate runs the provider call so that a canceled caller is released
// at once, even if the provider has not returned yet
func (s *Service) generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	type result struct {
		resp llm.Response
		err  error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := s.provider.Generate(ctx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}
