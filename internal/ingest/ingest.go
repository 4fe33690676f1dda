// Package ingest loads PDF files into a session and reports a status per
// document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"budget-rag/internal/metrics"
	"budget-rag/internal/models"
	"budget-rag/internal/processor"
	"budget-rag/internal/session"
)

// Level is the outcome of ingesting one document
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status reports the outcome of ingesting one document
type Status struct {
	Document string `json:"document"`
	Level    Level  `json:"level"`
	Message  string `json:"message"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Err      error  `json:"-"`
}

// String renders the status line shown to the user
func (s Status) String() string {
	return fmt.Sprintf("[%s] %s: %s", s.Level, s.Document, s.Message)
}

// Service extracts, chunks and indexes documents
type Service struct {
	processor     *processor.PDFProcessor
	maxConcurrent int
	logger        *zap.Logger
}

// NewService creates an ingestion service. maxConcurrent bounds the
// documents processed in parallel by IngestDir.
func NewService(p *processor.PDFProcessor, maxConcurrent int, logger *zap.Logger) *Service {
	return &Service{
		processor:     p,
		maxConcurrent: max(maxConcurrent, 1),
		logger:        logger,
	}
}

// IngestBytes loads one PDF into the session. Errors are reported in the
// returned status and leave the session unchanged. A document without
// text is skipped and replaces any earlier version of the same name.
func (s *Service) IngestBytes(ctx context.Context, sess *session.Session, name string, data []byte) Status {
	start := time.Now()
	st := s.ingest(ctx, sess, name, data)

	metrics.IngestedDocumentsTotal.WithLabelValues(string(st.Level)).Inc()
	metrics.IngestedChunksTotal.Add(float64(st.Chunks))

	fields := []zap.Field{
		zap.String("session", sess.ID),
		zap.String("document", st.Document),
		zap.Int("pages", st.Pages),
		zap.Int("chunks", st.Chunks),
		zap.Duration("duration", time.Since(start)),
	}
	switch st.Level {
	case LevelSuccess:
		s.logger.Info("Document ingested", fields...)
	case LevelWarning:
		s.logger.Warn("Document ingested with warning", append(fields, zap.String("reason", st.Message))...)
	default:
		s.logger.Error("Document ingestion failed", append(fields, zap.Error(st.Err))...)
	}

	return st
}

func (s *Service) ingest(ctx context.Context, sess *session.Session, name string, data []byte) Status {
	st := Status{Document: processor.DocumentID(name)}

	doc, chunks, err := s.processor.ProcessPDF(ctx, name, data)
	if err != nil {
		return errorStatus(st, err)
	}
	st.Pages = doc.TotalPages

	if len(chunks) == 0 {
		// a re-ingest replaces the document, so an earlier version goes too
		removed, err := sess.RemoveDocument(ctx, doc.ID)
		if err != nil {
			return errorStatus(st, err)
		}
		st.Level = LevelWarning
		st.Message = "no extractable text, document skipped"
		if removed {
			st.Message = "no extractable text, previous version removed"
		}
		st.Err = &models.ExtractionError{Document: st.Document, Reason: "no text", Err: models.ErrEmptyContent}
		return st
	}

	if err := sess.AddDocument(ctx, doc, chunks); err != nil {
		return errorStatus(st, err)
	}

	st.Level = LevelSuccess
	st.Chunks = len(chunks)
	st.Message = fmt.Sprintf("loaded %d pages, %d chunks", doc.TotalPages, len(chunks))
	return st
}

func errorStatus(st Status, err error) Status {
	st.Level = LevelError
	st.Err = err
	st.Message = err.Error()

	var extErr *models.ExtractionError
	if errors.As(err, &extErr) {
		st.Message = extErr.Reason
	}
	return st
}

// IngestFile loads a PDF from disk
func (s *Service) IngestFile(ctx context.Context, sess *session.Session, path string) Status {
	data, err := os.ReadFile(path)
	if err != nil {
		st := errorStatus(Status{Document: processor.DocumentID(path)}, fmt.Errorf("failed to read file: %w", err))
		metrics.IngestedDocumentsTotal.WithLabelValues(string(st.Level)).Inc()
		s.logger.Error("Document ingestion failed", zap.String("document", st.Document), zap.Error(err))
		return st
	}
	return s.IngestBytes(ctx, sess, path, data)
}

// IngestDir loads every PDF of a directory. Documents are processed in
// parallel and a failing document never stops the others. Statuses are
// returned in file name order.
func (s *Service) IngestDir(ctx context.Context, sess *session.Session, dir string) ([]Status, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	return s.IngestPaths(ctx, sess, paths), nil
}

// IngestPaths loads the given PDF files in parallel and returns their
// statuses in the same order
func (s *Service) IngestPaths(ctx context.Context, sess *session.Session, paths []string) []Status {
	statuses := make([]Status, len(paths))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, path := range paths {
		g.Go(func() error {
			statuses[i] = s.IngestFile(ctx, sess, path)
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// ListPDFs returns the PDF files of a directory sorted by name. The
// extension match is case-insensitive.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// IsPDF reports whether a file name has a .pdf extension and is not hidden
func IsPDF(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".pdf")
}

// Summary counts statuses per level
func Summary(statuses []Status) (success, warning, failed int) {
	for _, st := range statuses {
		switch st.Level {
		case LevelSuccess:
			success++
		case LevelWarning:
			warning++
		default:
			failed++
		}
	}
	return success, warning, failed
}
