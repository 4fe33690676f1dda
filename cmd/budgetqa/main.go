package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"budget-rag/internal/app"
	"budget-rag/internal/config"
	"budget-rag/internal/ingest"
	"budget-rag/internal/logger"
	"budget-rag/internal/session"
)

var (
	envName    string
	configPath string
	corpusDir  string
)

var rootCmd = &cobra.Command{
	Use:   "budgetqa",
	Short: "Ask questions about the Budget 2025 documents",
	Long: `budgetqa loads the Budget 2025 PDFs, indexes them and answers questions
grounded in their text, citing the document and page of every source.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(), "configuration environment (config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file, overrides --env")
	rootCmd.PersistentFlags().StringVar(&corpusDir, "dir", "", "directory of PDFs to load, overrides corpus.dir")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(envName)
	}
	if err != nil {
		return config.Config{}, err
	}
	if corpusDir != "" {
		cfg.Corpus.Dir = corpusDir
	}
	return cfg, nil
}

// buildApp loads the configuration, builds the services and preloads the
// corpus directory. Every ingestion status is printed to cmd's error stream.
func buildApp(ctx context.Context, cmd *cobra.Command, cfg config.Config, log *zap.Logger) (*app.App, *session.Session, string, error) {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, "", err
	}

	corpus, statuses, err := a.Corpus(ctx)
	if err != nil {
		a.Close()
		return nil, nil, "", fmt.Errorf("failed to load corpus: %w", err)
	}
	for _, st := range statuses {
		cmd.PrintErrln(st.String())
	}

	return a, corpus, corpusSummary(corpus, statuses), nil
}

func corpusSummary(corpus *session.Session, statuses []ingest.Status) string {
	ok, warned, failed := ingest.Summary(statuses)
	summary := fmt.Sprintf("%d documents loaded (%d chunks)", corpus.Store.Len(), corpus.Store.ChunkCount())
	if warned+failed > 0 {
		summary += fmt.Sprintf(", this run: %d ok, %d warnings, %d errors", ok, warned, failed)
	}
	return summary
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.NewLogger(envName, cfg.Logging.Level)
}
