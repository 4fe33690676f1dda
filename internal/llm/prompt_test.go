package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-rag/internal/models"
)

func scored(doc string, page int, text string, score float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk: models.Chunk{DocumentID: doc, PageNumber: page, Text: text},
		Score: score,
	}
}

func TestPromptBuilder_RetrievalSources(t *testing.T) {
	results := []models.ScoredChunk{
		scored("speech.pdf", 3, strings.Repeat("a", 400), 0.9),
		scored("speech.pdf", 4, strings.Repeat("b", 400), 0.8),
		scored("annex.pdf", 1, strings.Repeat("c", 400), 0.7),
	}

	tests := []struct {
		name    string
		budget  int
		lengths []int
	}{
		{name: "unbounded", budget: 0, lengths: []int{400, 400, 400}},
		{name: "all fit", budget: 1200, lengths: []int{400, 400, 400}},
		{name: "partial cut", budget: 1000, lengths: []int{400, 400, 200}},
		{name: "remainder too small", budget: 999, lengths: []int{400, 400}},
		{name: "first chunk cut", budget: 250, lengths: []int{250}},
		{name: "nothing fits", budget: 100, lengths: []int{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewPromptBuilder(tc.budget, 0)
			sources := b.RetrievalSources(results)

			lengths := make([]int, len(sources))
			for i, s := range sources {
				lengths[i] = len(s.Text)
				assert.Equal(t, results[i].Chunk.PageNumber, s.PageNumber, "relevance order kept")
			}
			assert.Equal(t, tc.lengths, lengths)
		})
	}
}

func TestPromptBuilder_CutsOnRuneBoundary(t *testing.T) {
	b := NewPromptBuilder(300, 0)
	sources := b.RetrievalSources([]models.ScoredChunk{scored("d.pdf", 1, strings.Repeat("₹", 500), 1)})
	require.Len(t, sources, 1)
	assert.Equal(t, strings.Repeat("₹", 300), sources[0].Text)
}

func TestPromptBuilder_WholeSources(t *testing.T) {
	recent := &models.Document{ID: "recent.pdf", Pages: []models.Page{
		{Number: 1, Text: strings.Repeat("r", 300)},
		{Number: 2, Text: ""},
		{Number: 3, Text: strings.Repeat("s", 300)},
	}}
	older := &models.Document{ID: "older.pdf", Pages: []models.Page{
		{Number: 1, Text: strings.Repeat("o", 300)},
		{Number: 2, Text: strings.Repeat("p", 300)},
	}}

	b := NewPromptBuilder(800, 0)
	sources := b.WholeSources([]*models.Document{recent, older})
	require.Len(t, sources, 3)

	assert.Equal(t, "recent.pdf", sources[0].DocumentID)
	assert.Equal(t, 1, sources[0].PageNumber)
	assert.Equal(t, 3, sources[1].PageNumber)
	assert.Equal(t, "older.pdf", sources[2].DocumentID)
	assert.Len(t, sources[2].Text, 200)
}

func TestPromptBuilder_History(t *testing.T) {
	turns := []models.Turn{
		{Role: models.RoleUser, Text: "q1"},
		{Role: models.RoleAssistant, Text: "a1"},
		{Role: models.RoleUser, Text: "q2"},
		{Role: models.RoleAssistant, Text: "a2"},
	}

	assert.Equal(t, turns, NewPromptBuilder(0, 10).History(turns))
	assert.Equal(t, turns[2:], NewPromptBuilder(0, 2).History(turns))
	assert.Equal(t, turns[2:], NewPromptBuilder(0, 3).History(turns), "history starts with a user turn")
	assert.Nil(t, NewPromptBuilder(0, 0).History(turns))
	assert.Nil(t, NewPromptBuilder(0, 1).History(turns))

	history := NewPromptBuilder(0, 10).History(turns)
	history[0].Text = "changed"
	assert.Equal(t, "q1", turns[0].Text)
}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder(0, 0)
	prompt := b.Build("What is the fiscal deficit target?", []Source{
		{DocumentID: "budget_speech.pdf", PageNumber: 3, Text: "The fiscal deficit target for 2025 is 4.9% of GDP."},
		{DocumentID: "annex.pdf", PageNumber: 7, Text: "Capital expenditure."},
	})

	assert.Contains(t, prompt, NotEnoughInformation)
	assert.Contains(t, prompt, "[Source 1: budget_speech.pdf, page 3]\nThe fiscal deficit target for 2025 is 4.9% of GDP.")
	assert.Contains(t, prompt, "[Source 2: annex.pdf, page 7]")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is the fiscal deficit target?\n\nAnswer: "))
}
