// Package tui is the interactive terminal chat over a session.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"budget-rag/internal/models"
	"budget-rag/internal/rag"
	"budget-rag/internal/session"
)

// Assistant is the part of the answer service the chat needs
type Assistant interface {
	Ask(ctx context.Context, sess *session.Session, q models.Query) (*models.Answer, error)
}

const helpText = `Commands:
  /mode whole|retrieval  switch how context is selected
  /docs                  list loaded documents
  /reset                 clear documents and history
  /help                  show this help
  exit, quit             leave the chat`

// answerMsg carries the result of a background Ask
type answerMsg struct {
	question string
	answer   *models.Answer
	err      error
}

// resetMsg reports the end of a session reset
type resetMsg struct{ err error }

// Model is the Bubble Tea model of the chat
type Model struct {
	assistant Assistant
	sess      *session.Session
	mode      models.Mode
	timeout   time.Duration

	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	summary    string
	status     string
	busy       bool
	ready      bool
}

// New creates a chat model. summary is shown under the title, usually the
// ingestion result of the loaded documents.
func New(assistant Assistant, sess *session.Session, mode models.Mode, timeout time.Duration, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the budget and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		assistant: assistant,
		sess:      sess,
		mode:      mode,
		timeout:   timeout,
		input:     ti,
		viewport:  viewport.New(0, 0),
		summary:   summary,
		status:    "Ready. Type /help for commands.",
	}
}

// Init starts the cursor blink
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.appendEntry(errorStyle.Render("Error: " + msg.err.Error()))
		} else {
			m.status = fmt.Sprintf("Answered in %s mode", msg.answer.Mode)
			m.appendEntry(rag.FormatAnswer(msg.answer))
		}
		return m, nil

	case resetMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.transcript = nil
		m.status = "Session reset. Documents and history cleared."
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")

	switch lower := strings.ToLower(line); {
	case lower == "exit" || lower == "quit":
		return m, tea.Quit
	case lower == "/help":
		m.appendEntry(helpText)
		return m, nil
	case lower == "/docs":
		m.appendEntry(m.documentList())
		return m, nil
	case lower == "/reset":
		m.busy = true
		m.status = "Resetting..."
		return m, m.resetCmd()
	case strings.HasPrefix(lower, "/mode"):
		mode := models.Mode(strings.TrimSpace(strings.TrimPrefix(lower, "/mode")))
		if !mode.Valid() {
			m.status = fmt.Sprintf("Unknown mode %q, use whole or retrieval", mode)
			return m, nil
		}
		m.mode = mode
		m.status = fmt.Sprintf("Mode set to %s", mode)
		return m, nil
	case strings.HasPrefix(lower, "/"):
		m.status = fmt.Sprintf("Unknown command %q", line)
		return m, nil
	}

	m.busy = true
	m.status = "Thinking..."
	m.appendEntry(questionStyle.Render("> " + line))
	return m, m.askCmd(line)
}

func (m Model) askCmd(question string) tea.Cmd {
	assistant, sess, mode, timeout := m.assistant, m.sess, m.mode, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := assistant.Ask(ctx, sess, models.Query{Question: question, Mode: mode})
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return resetMsg{err: sess.Reset(context.Background())}
	}
}

func (m Model) documentList() string {
	docs := m.sess.Store.Documents()
	if len(docs) == 0 {
		return "No documents loaded."
	}

	var sb strings.Builder
	sb.WriteString("Loaded documents:\n")
	for i, d := range docs {
		sb.WriteString(fmt.Sprintf("  %d. %s (%d pages)\n", i+1, d.ID, d.TotalPages))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) appendEntry(entry string) {
	m.transcript = append(m.transcript, entry)
	m.refresh()
}

func (m *Model) refresh() {
	if len(m.transcript) == 0 {
		m.viewport.SetContent("Ask a question about the loaded documents.")
		return
	}
	width := max(20, m.viewport.Width)
	m.viewport.SetContent(lipgloss.NewStyle().Width(width).Render(strings.Join(m.transcript, "\n\n")))
	m.viewport.GotoBottom()
}

// View renders the chat layout
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render(fmt.Sprintf("Budget 2025 Assistant [%s]", m.mode))
	summary := summaryStyle.Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

var (
	titleStyle         = lipgloss.NewStyle().Bold(true)
	summaryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
