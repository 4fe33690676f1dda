package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-rag/internal/llm"
)

func TestCite(t *testing.T) {
	sources := []llm.Source{
		{DocumentID: "speech.pdf", PageNumber: 1, Text: "Union Budget speech"},
		{DocumentID: "speech.pdf", PageNumber: 3, Text: "The fiscal deficit target for 2025 is 4.9% of GDP."},
		{DocumentID: "speech.pdf", PageNumber: 3, Text: "Deficit reduction continues."},
		{DocumentID: "annex.pdf", PageNumber: 2, Text: "Fiscal consolidation path."},
	}

	citations, ok := Cite("The fiscal deficit target is 4.9% of GDP.", sources)
	require.True(t, ok)
	require.Len(t, citations, 2)
	assert.Equal(t, 3, citations[0].PageNumber)
	assert.Contains(t, citations[0].Snippet, "4.9%")
	assert.Equal(t, "annex.pdf", citations[1].DocumentID)
	assert.Greater(t, citations[0].Score, citations[1].Score)
	assert.LessOrEqual(t, citations[0].Score, 1.0)
}

func TestCite_NoOverlapIsCapped(t *testing.T) {
	var sources []llm.Source
	for page := 1; page <= 40; page++ {
		sources = append(sources, llm.Source{DocumentID: "receipts.pdf", PageNumber: page, Text: "Statement of receipts"})
	}

	citations, ok := Cite("Bananas are yellow.", sources)
	assert.False(t, ok)
	require.Len(t, citations, maxCitations)
	for i, c := range citations {
		assert.Equal(t, i+1, c.PageNumber)
		assert.Zero(t, c.Score)
	}
}

func TestCite_NoOverlapCitesPromptSources(t *testing.T) {
	sources := []llm.Source{
		{DocumentID: "speech.pdf", PageNumber: 1, Text: "Union Budget speech"},
		{DocumentID: "annex.pdf", PageNumber: 2, Text: "Fiscal consolidation path."},
	}

	citations, ok := Cite("Bananas are yellow.", sources)
	assert.False(t, ok)
	require.Len(t, citations, 2)
	assert.Zero(t, citations[0].Score)

	citations, ok = Cite("anything", nil)
	assert.False(t, ok)
	assert.Empty(t, citations)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", Snippet("short\n text"))

	long := strings.Repeat("deficit ", 60)
	s := Snippet(long)
	assert.True(t, strings.HasSuffix(s, "deficit..."))
	assert.LessOrEqual(t, len([]rune(s)), snippetRunes+3)
}

func TestIsNotEnoughInformation(t *testing.T) {
	assert.True(t, IsNotEnoughInformation(llm.NotEnoughInformation))
	assert.True(t, IsNotEnoughInformation("Sorry, I don’t have enough information to answer that."))
	assert.True(t, IsNotEnoughInformation("I do not have enough information."))
	assert.False(t, IsNotEnoughInformation("The deficit is 4.9% of GDP."))
}
