package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"budget-rag/internal/ingest"
	"budget-rag/internal/processor"
	"budget-rag/internal/session"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf ...]",
	Short: "Check which PDFs can be loaded",
	Long: `Extracts and chunks PDFs without embedding or storing them and prints one
status line per document. With no arguments the corpus directory is used.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	paths := args
	if len(paths) == 0 {
		if cfg.Corpus.Dir == "" {
			return errors.New("no files given and corpus.dir is not set")
		}
		if paths, err = ingest.ListPDFs(cfg.Corpus.Dir); err != nil {
			return err
		}
	}

	svc := ingest.NewService(processor.NewPDFProcessor(cfg.Chunking.Size, cfg.Chunking.Overlap), cfg.Corpus.MaxConcurrent, log)
	statuses := svc.IngestPaths(context.Background(), session.New("ingest", nil), paths)
	for _, st := range statuses {
		cmd.Println(st.String())
	}

	ok, warned, failed := ingest.Summary(statuses)
	cmd.Printf("%d loaded, %d warnings, %d errors\n", ok, warned, failed)
	if failed > 0 {
		return fmt.Errorf("%d documents could not be loaded", failed)
	}
	return nil
}
