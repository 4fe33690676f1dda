package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-rag/internal/models"
	"budget-rag/internal/session"
)

type fakeAssistant struct {
	queries []models.Query
	err     error
}

func (f *fakeAssistant) Ask(ctx context.Context, sess *session.Session, q models.Query) (*models.Answer, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Answer{
		Text:       "The fiscal deficit target is 4.9% of GDP.",
		Mode:       q.Mode,
		Provenance: []models.Provenance{{DocumentID: "budget_speech.pdf", PageNumber: 3}},
	}, nil
}

func newModel(t *testing.T, a Assistant) (Model, *session.Session) {
	t.Helper()
	sess := session.New("chat", nil)
	m := New(a, sess, models.ModeRetrieval, 0, "1 document loaded")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), sess
}

func enter(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_AskRendersAnswerWithSources(t *testing.T) {
	a := &fakeAssistant{}
	m, _ := newModel(t, a)

	m, cmd := enter(t, m, "What is the fiscal deficit target?")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())

	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.False(t, m.busy)
	require.Len(t, a.queries, 1)
	assert.Equal(t, models.ModeRetrieval, a.queries[0].Mode)
	require.Len(t, m.transcript, 2)
	assert.Contains(t, m.transcript[1], "4.9% of GDP")
	assert.Contains(t, m.transcript[1], "1. [budget_speech.pdf, Page: 3]")
}

func TestModel_IgnoresInputWhileBusy(t *testing.T) {
	m, _ := newModel(t, &fakeAssistant{})

	m, cmd := enter(t, m, "first")
	require.NotNil(t, cmd)

	_, cmd = enter(t, m, "second")
	assert.Nil(t, cmd)
}

func TestModel_ShowsErrors(t *testing.T) {
	m, _ := newModel(t, &fakeAssistant{err: models.ErrNoDocuments})

	m, cmd := enter(t, m, "anything")
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Contains(t, m.status, "no documents loaded")
}

func TestModel_Commands(t *testing.T) {
	a := &fakeAssistant{}
	m, sess := newModel(t, a)

	m, cmd := enter(t, m, "/mode whole")
	assert.Nil(t, cmd)
	assert.Equal(t, models.ModeWhole, m.mode)

	m, _ = enter(t, m, "/mode everything")
	assert.Equal(t, models.ModeWhole, m.mode)
	assert.Contains(t, m.status, "Unknown mode")

	m, _ = enter(t, m, "/docs")
	assert.Contains(t, m.transcript[len(m.transcript)-1], "No documents loaded.")

	require.NoError(t, sess.AddDocument(context.Background(),
		&models.Document{ID: "budget_speech.pdf", TotalPages: 3},
		[]models.Chunk{{ID: "c1", DocumentID: "budget_speech.pdf", PageNumber: 1, Text: "text"}}))
	m, _ = enter(t, m, "/docs")
	assert.Contains(t, m.transcript[len(m.transcript)-1], "1. budget_speech.pdf (3 pages)")

	m, _ = enter(t, m, "/unknown")
	assert.Contains(t, m.status, "Unknown command")

	m, cmd = enter(t, m, "/reset")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Empty(t, m.transcript)
	assert.Equal(t, 0, sess.Store.Len())

	m, cmd = enter(t, m, "What now?")
	require.NotNil(t, cmd)
	m.Update(cmd())
	require.Len(t, a.queries, 1)
	assert.Equal(t, models.ModeWhole, a.queries[0].Mode)
}

func TestModel_Quit(t *testing.T) {
	m, _ := newModel(t, &fakeAssistant{})

	_, cmd := enter(t, m, "exit")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_ResetError(t *testing.T) {
	m, _ := newModel(t, &fakeAssistant{})
	next, _ := m.Update(resetMsg{err: errors.New("database down")})
	assert.Contains(t, next.(Model).status, "database down")
}
