// Package app builds the assistant's components from configuration.
package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"budget-rag/internal/cache"
	"budget-rag/internal/config"
	"budget-rag/internal/database"
	"budget-rag/internal/embedding"
	"budget-rag/internal/ingest"
	"budget-rag/internal/llm"
	"budget-rag/internal/models"
	"budget-rag/internal/processor"
	"budget-rag/internal/rag"
	"budget-rag/internal/retry"
	"budget-rag/internal/session"
	"budget-rag/internal/vectorstore"
)

// CorpusSessionID names the session holding the preloaded corpus
const CorpusSessionID = "corpus"

// App holds the wired components
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Sessions *session.Manager
	Ingest   *ingest.Service
	RAG      *rag.Service

	db    *database.DB
	redis *cache.Redis
}

// New validates credentials and builds every component. External
// connections are opened only when configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	if len(cfg.Cache.Addrs) > 0 {
		r, err := cache.NewRedis(cache.RedisConfig{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
			TTL:      time.Duration(cfg.Cache.TTLSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.redis = r
	}

	embedder, err := a.newEmbedder()
	if err != nil {
		a.Close()
		return nil, err
	}

	provider, err := newProvider(ctx, cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	stores := session.StoreFactory(session.MemoryStores)
	if cfg.Database.URL != "" {
		db, err := database.NewDB(ctx, cfg.Database.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		if err := db.Initialize(ctx, cfg.Database.Dimensions); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		stores = func(id string) vectorstore.Store { return db.Namespace(id) }
	}

	a.Sessions = session.NewManager(embedder, stores, cfg.Embedding.MaxConcurrent, logger)
	a.Ingest = ingest.NewService(
		processor.NewPDFProcessor(cfg.Chunking.Size, cfg.Chunking.Overlap),
		cfg.Corpus.MaxConcurrent,
		logger,
	)
	a.RAG = rag.NewService(
		provider,
		llm.NewPromptBuilder(cfg.Retrieval.MaxContextChars, cfg.Retrieval.MaxHistoryTurns),
		rag.Config{
			System: cfg.LLM.SystemPrompt,
			Params: llm.Params{
				Temperature:     cfg.LLM.Temperature,
				TopP:            cfg.LLM.TopP,
				TopK:            cfg.LLM.TopK,
				MaxOutputTokens: cfg.LLM.MaxOutputTokens,
			},
			Mode: models.Mode(cfg.Retrieval.Mode),
			TopK: cfg.Retrieval.TopK,
		},
		logger,
	)

	logger.Info("Assistant ready",
		zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model),
		zap.String("embedder", embedder.Name()),
		zap.Bool("postgres", a.db != nil),
		zap.Bool("redis", a.redis != nil),
	)
	return a, nil
}

func (a *App) newEmbedder() (embedding.Embedder, error) {
	cfg := a.Config.Embedding

	var inner embedding.Embedder
	switch cfg.Provider {
	case config.ProviderHashing:
		return embedding.NewHashingEmbedder(cfg.Dimensions), nil
	case config.ProviderOpenAI:
		inner = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case config.ProviderOllama:
		e, err := embedding.NewOllamaEmbedder(cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, &models.ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}

	instrumented := embedding.NewInstrumentedEmbedder(inner, policy(cfg.Attempts, cfg.TimeoutSec), a.Logger)

	var kv embedding.KV = cache.NewMemory()
	if a.redis != nil {
		kv = a.redis
	}
	return embedding.NewCachedEmbedder(instrumented, kv, a.Config.Cache.KeyPrefix, a.Logger), nil
}

func newProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	var p llm.Provider
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		p = g
	case config.ProviderOpenAI:
		p = llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	case config.ProviderOllama:
		o, err := llm.NewOllamaLLM(cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		p = o
	default:
		return nil, &models.ConfigurationError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}
	return llm.NewInstrumented(p, policy(cfg.Attempts, cfg.TimeoutSec), logger), nil
}

func policy(attempts, timeoutSec int) retry.Policy {
	p := retry.DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if timeoutSec > 0 {
		p.Timeout = time.Duration(timeoutSec) * time.Second
	}
	return p
}

// Persistent reports whether vectors are stored in PostgreSQL
func (a *App) Persistent() bool { return a.db != nil }

// Corpus opens the shared corpus session. Documents persisted by an
// earlier run are restored first, then every PDF of the corpus directory
// that is not loaded yet is ingested.
func (a *App) Corpus(ctx context.Context) (*session.Session, []ingest.Status, error) {
	sess := a.Sessions.Open(CorpusSessionID)

	restored, err := a.Restore(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	if restored > 0 {
		a.Logger.Info("Restored persisted documents", zap.Int("documents", restored))
	}

	if a.Config.Corpus.Dir == "" {
		return sess, nil, nil
	}

	paths, err := ingest.ListPDFs(a.Config.Corpus.Dir)
	if err != nil {
		return nil, nil, err
	}
	pending := paths[:0]
	for _, p := range paths {
		if _, _, ok := sess.Store.Get(processor.DocumentID(p)); !ok {
			pending = append(pending, p)
		}
	}

	return sess, a.Ingest.IngestPaths(ctx, sess, pending), nil
}

// Restore loads the documents persisted for a session back into it. Page
// texts are rebuilt from the stored chunks. It returns the number of
// restored documents and does nothing without a database.
func (a *App) Restore(ctx context.Context, sess *session.Session) (int, error) {
	if a.db == nil {
		return 0, nil
	}

	chunks, err := a.db.Namespace(sess.ID).Chunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load persisted chunks: %w", err)
	}

	docs := RebuildDocuments(chunks, a.Config.Chunking.Overlap)
	for _, d := range docs {
		if err := sess.Restore(d.Document, d.Chunks); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

// RebuiltDocument is a document reassembled from its chunks
type RebuiltDocument struct {
	Document *models.Document
	Chunks   []models.Chunk
}

// RebuildDocuments groups chunks by document, in order of first
// appearance, and merges the chunks of every page back into its text.
// Pages without chunks are kept empty.
func RebuildDocuments(chunks []models.Chunk, overlap int) []RebuiltDocument {
	var out []RebuiltDocument
	index := make(map[string]int)

	for _, c := range chunks {
		i, ok := index[c.DocumentID]
		if !ok {
			i = len(out)
			index[c.DocumentID] = i
			out = append(out, RebuiltDocument{Document: &models.Document{
				ID:         c.DocumentID,
				Name:       c.DocumentID,
				TotalPages: c.TotalPages,
				IngestedAt: time.Now(),
			}})
		}
		out[i].Chunks = append(out[i].Chunks, c)
	}

	for _, d := range out {
		slices.SortStableFunc(d.Chunks, func(a, b models.Chunk) int { return cmp.Compare(a.Sequence, b.Sequence) })

		texts := make(map[int][]string)
		for _, c := range d.Chunks {
			texts[c.PageNumber] = append(texts[c.PageNumber], c.Text)
		}

		pages := d.Document.TotalPages
		for n := range texts {
			pages = max(pages, n)
		}
		d.Document.TotalPages = pages
		for n := 1; n <= pages; n++ {
			d.Document.Pages = append(d.Document.Pages, models.Page{Number: n, Text: processor.Merge(texts[n], overlap)})
		}
	}

	return out
}

// Close releases external connections
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
