package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"budget-rag/internal/models"
)

const (
	// DefaultSystemPrompt frames every conversation
	DefaultSystemPrompt = "You are a helpful assistant for India's 2025 budget and related announcements."

	// NotEnoughInformation is the reply the model is told to give when the
	// context does not contain the answer
	NotEnoughInformation = "I don't have enough information to answer that question based on the loaded documents."

	// minPartialContext is the smallest remainder worth sending as a cut context
	minPartialContext = 200
)

// Source is a block of document text placed in the prompt
type Source struct {
	DocumentID string
	PageNumber int
	Text       string
	Score      float64
}

// PromptBuilder assembles prompts within a character budget
type PromptBuilder struct {
	// MaxContextChars bounds the context text in runes; zero means unbounded
	MaxContextChars int
	// MaxHistoryTurns bounds the conversation turns sent along with the prompt
	MaxHistoryTurns int
}

// NewPromptBuilder creates a prompt builder
func NewPromptBuilder(maxContextChars, maxHistoryTurns int) *PromptBuilder {
	return &PromptBuilder{
		MaxContextChars: maxContextChars,
		MaxHistoryTurns: maxHistoryTurns,
	}
}

// RetrievalSources converts retrieved chunks, highest score first, into
// the sources that fit the budget
func (b *PromptBuilder) RetrievalSources(results []models.ScoredChunk) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			DocumentID: r.Chunk.DocumentID,
			PageNumber: r.Chunk.PageNumber,
			Text:       r.Chunk.Text,
			Score:      r.Score,
		})
	}
	return b.fit(sources)
}

// WholeSources converts documents into one source per non-empty page.
// docs must already be ordered by priority; pages that do not fit the
// budget are dropped from the end.
func (b *PromptBuilder) WholeSources(docs []*models.Document) []Source {
	var sources []Source
	for _, doc := range docs {
		for _, page := range doc.Pages {
			if page.Text == "" {
				continue
			}
			sources = append(sources, Source{
				DocumentID: doc.ID,
				PageNumber: page.Number,
				Text:       page.Text,
			})
		}
	}
	return b.fit(sources)
}

// fit keeps whole sources while they fit. The first source that does not
// fit is cut to the remaining budget when enough of it is left, and
// everything after it is dropped.
func (b *PromptBuilder) fit(sources []Source) []Source {
	if b.MaxContextChars <= 0 {
		return sources
	}

	remaining := b.MaxContextChars
	kept := make([]Source, 0, len(sources))
	for _, s := range sources {
		n := utf8.RuneCountInString(s.Text)
		if n <= remaining {
			kept = append(kept, s)
			remaining -= n
			continue
		}
		if remaining >= minPartialContext {
			s.Text = string([]rune(s.Text)[:remaining])
			kept = append(kept, s)
		}
		break
	}
	return kept
}

// History returns the most recent turns within the limit, starting with a
// user turn
func (b *PromptBuilder) History(turns []models.Turn) []models.Turn {
	if b.MaxHistoryTurns <= 0 || len(turns) == 0 {
		return nil
	}

	start := max(len(turns)-b.MaxHistoryTurns, 0)
	for start < len(turns) && turns[start].Role != models.RoleUser {
		start++
	}
	if start == len(turns) {
		return nil
	}

	out := make([]models.Turn, len(turns)-start)
	copy(out, turns[start:])
	return out
}

// Build creates the prompt for a question and its context
func (b *PromptBuilder) Build(question string, sources []Source) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("Answer the question using only the context below, taken from India's Budget 2025 documents. ")
	promptBuilder.WriteString("Quote figures exactly as they appear in the context and name the document and page they come from. ")
	promptBuilder.WriteString("If the answer is not in the context, say '" + NotEnoughInformation + "'\n\n")

	promptBuilder.WriteString("Context from the loaded documents:\n")
	for i, s := range sources {
		promptBuilder.WriteString(fmt.Sprintf("[Source %d: %s, page %d]\n", i+1, s.DocumentID, s.PageNumber))
		promptBuilder.WriteString(s.Text)
		promptBuilder.WriteString("\n\n")
	}

	promptBuilder.WriteString("Question: " + question + "\n\n")
	promptBuilder.WriteString("Answer: ")

	return promptBuilder.String()
}
