// Package metrics defines the Prometheus collectors of the assistant.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "budget_rag"

var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of answer generation requests",
		},
		[]string{"provider", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Answer generation duration in seconds, retries included",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)

	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Retried calls to external providers",
		},
		[]string{"provider", "kind"},
	)

	IngestedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_documents_total",
			Help:      "Documents processed by ingestion, by outcome",
		},
		[]string{"level"},
	)

	IngestedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks stored by ingestion",
		},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers produced, by mode and confidence",
		},
		[]string{"mode", "confidence"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open sessions",
		},
	)
)

var registerOnce sync.Once

// Register registers the domain collectors with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingCacheTotal,
			GenerationRequestsTotal,
			GenerationRequestDuration,
			ProviderRetriesTotal,
			IngestedDocumentsTotal,
			IngestedChunksTotal,
			AnswersTotal,
			ActiveSessions,
		)
	})
}

// Status returns the status label for an operation outcome
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
