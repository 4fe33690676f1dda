package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"budget-rag/internal/models"
	"budget-rag/internal/rag"
)

var (
	askMode string
	askTopK int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMode, "mode", "m", "", "context mode: whole or retrieval (default from config)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, corpus, _, err := buildApp(ctx, cmd, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.RAG.Ask(ctx, corpus, models.Query{
		Question: strings.Join(args, " "),
		Mode:     models.Mode(askMode),
		TopK:     askTopK,
	})
	if err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Print(rag.FormatAnswer(answer))
	return nil
}
