package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"budget-rag/internal/logger"
	"budget-rag/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat",
	Long: `Starts a terminal chat over the loaded documents. Logs are written to
logging.file so they do not interfere with the screen.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	a, corpus, summary, err := buildApp(ctx, cmd, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(a.RAG, corpus, a.RAG.DefaultMode(), 0, summary)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	return nil
}
