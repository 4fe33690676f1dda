// Package httpapi serves the assistant over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"budget-rag/internal/ingest"
	"budget-rag/internal/logger"
	"budget-rag/internal/metrics"
	"budget-rag/internal/models"
	"budget-rag/internal/rag"
	"budget-rag/internal/session"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// QueryRequest is the body of the query endpoints
type QueryRequest struct {
	Query string      `json:"query"`
	Mode  models.Mode `json:"mode,omitempty"`
	TopK  int         `json:"top_k,omitempty"`
}

// SessionResponse describes a session
type SessionResponse struct {
	SessionID string             `json:"session_id"`
	Documents []DocumentResponse `json:"documents"`
}

// DocumentResponse describes a loaded document
type DocumentResponse struct {
	ID         string `json:"id"`
	TotalPages int    `json:"total_pages"`
}

// Server handles the HTTP API
type Server struct {
	sessions      *session.Manager
	ingest        *ingest.Service
	rag           *rag.Service
	corpus        *session.Session
	maxUpload     int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. corpus answers POST /api/query and
// may be nil.
func NewServer(
	sessions *session.Manager,
	ingestSvc *ingest.Service,
	ragSvc *rag.Service,
	corpus *session.Session,
	maxUpload int64,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sessions:  sessions,
		ingest:    ingestSvc,
		rag:       ragSvc,
		corpus:    corpus,
		maxUpload: maxUpload,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(rag.ErrEmptyQuestion, http.StatusBadRequest, "bad_request"),
		sentinelHandler(rag.ErrInvalidMode, http.StatusBadRequest, "bad_request"),
		sentinelHandler(models.ErrSessionNotFound, http.StatusNotFound, "session_not_found"),
		sentinelHandler(models.ErrNoDocuments, http.StatusServiceUnavailable, "no_documents"),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"),
		sentinelHandler(models.ErrGeneration, http.StatusBadGateway, "generation_failed"),
		sentinelHandler(models.ErrEmbedding, http.StatusBadGateway, "embedding_failed"),
		sentinelHandler(models.ErrConfiguration, http.StatusInternalServerError, "configuration_error"),
	}
	return s
}

// Router builds the chi router with the API routes and middleware
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})

	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.Query)
		r.Post("/sessions", s.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.CloseSession)
			r.Post("/reset", s.ResetSession)
			r.Post("/documents", s.UploadDocument)
			r.Delete("/documents/{document}", s.DeleteDocument)
			r.Post("/query", s.SessionQuery)
		})
	})

	return r
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "sessions": s.sessions.Len()}
	if s.corpus != nil {
		resp["corpus_documents"] = s.corpus.Store.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Query handles POST /api/query against the preloaded corpus
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	if s.corpus == nil {
		s.handleDomainError(w, r, models.ErrNoDocuments)
		return
	}
	s.answer(w, r, s.corpus)
}

// CreateSession handles POST /api/sessions
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

// GetSession handles GET /api/sessions/{id}
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// CloseSession handles DELETE /api/sessions/{id}
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetSession handles POST /api/sessions/{id}/reset
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadDocument handles POST /api/sessions/{id}/documents with a
// multipart "file" field
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds the upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read upload: "+err.Error())
		return
	}

	st := s.ingest.IngestBytes(r.Context(), sess, header.Filename, data)

	status := http.StatusCreated
	switch {
	case st.Level == ingest.LevelWarning:
		status = http.StatusOK
	case st.Level == ingest.LevelError && errors.Is(st.Err, models.ErrExtraction):
		status = http.StatusUnprocessableEntity
	case st.Level == ingest.LevelError && errors.Is(st.Err, models.ErrEmbedding):
		status = http.StatusBadGateway
	case st.Level == ingest.LevelError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, st)
}

// DeleteDocument handles DELETE /api/sessions/{id}/documents/{document}
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	removed, err := sess.RemoveDocument(r.Context(), chi.URLParam(r, "document"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "document_not_found", "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionQuery handles POST /api/sessions/{id}/query
func (s *Server) SessionQuery(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.answer(w, r, sess)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "No query provided")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "top_k must be positive")
		return
	}

	answer, err := s.rag.Ask(r.Context(), sess, models.Query{Question: req.Query, Mode: req.Mode, TopK: req.TopK})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func sessionResponse(sess *session.Session) SessionResponse {
	docs := sess.Store.Documents()
	resp := SessionResponse{SessionID: sess.ID, Documents: make([]DocumentResponse, len(docs))}
	for i, d := range docs {
		resp.Documents[i] = DocumentResponse{ID: d.ID, TotalPages: d.TotalPages}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Error: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	log.Warn("request failed", zap.Error(err))

	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "An error occurred while processing your query.")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace
func jsonRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					log.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one log line per request and puts a request-scoped
// logger in the context
func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
