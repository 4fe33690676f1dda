package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"budget-rag/internal/app"
	"budget-rag/internal/config"
	"budget-rag/internal/ingest"
	"budget-rag/internal/logger"
)

func main() {
	_ = godotenv.Load()

	// Parse command line flags
	env := flag.String("env", config.GetEnv(), "Configuration environment (config/<env>.yaml)")
	configPath := flag.String("config", "", "Path to a YAML config file, overrides -env")
	dir := flag.String("dir", "", "Directory of PDFs to index (default corpus.dir)")
	pgConnString := flag.String("pg", "", "PostgreSQL connection string (default database.url)")
	reset := flag.Bool("reset", false, "Drop every persisted corpus vector before indexing")
	flag.Parse()

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load(*env)
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dir != "" {
		cfg.Corpus.Dir = *dir
	}
	if *pgConnString != "" {
		cfg.Database.URL = *pgConnString
	}
	if cfg.Database.URL == "" {
		log.Fatal("A database is required: set database.url or use -pg")
	}
	if cfg.Corpus.Dir == "" {
		log.Fatal("A PDF directory is required: set corpus.dir or use -dir")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	zl, err := logger.NewLogger(*env, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	if *reset {
		if err := a.Sessions.Open(app.CorpusSessionID).Reset(ctx); err != nil {
			zl.Fatal("Failed to reset corpus", zap.Error(err))
		}
		zl.Info("Corpus vectors dropped")
	}

	zl.Info("Indexing PDFs",
		zap.String("dir", cfg.Corpus.Dir),
		zap.String("embedder", cfg.Embedding.Provider),
		zap.Int("max_concurrent", cfg.Embedding.MaxConcurrent),
	)

	startTime := time.Now()
	corpus, statuses, err := a.Corpus(ctx)
	if err != nil {
		zl.Fatal("Failed to index corpus", zap.Error(err))
	}

	for _, st := range statuses {
		zl.Info(st.String())
	}
	ok, warned, failed := ingest.Summary(statuses)
	zl.Info("Indexing complete",
		zap.Int("indexed", ok),
		zap.Int("warnings", warned),
		zap.Int("errors", failed),
		zap.Int("documents", corpus.Store.Len()),
		zap.Int("chunks", corpus.Store.ChunkCount()),
		zap.Duration("elapsed", time.Since(startTime)),
	)
}
