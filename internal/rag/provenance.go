package rag

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"budget-rag/internal/llm"
	"budget-rag/internal/models"
	"budget-rag/internal/processor"
)

const (
	maxCitations = 5
	snippetRunes = 240
)

// Cite scores every source by the Ochiai coefficient between its terms and
// the answer's terms. Sources sharing terms with the answer are cited,
// best first; when none does, the first sources in prompt order are cited
// with a zero score and ok is false. A page is cited once, with its best
// score, and at most maxCitations pages are cited.
func Cite(answer string, sources []llm.Source) (citations []models.Provenance, ok bool) {
	answerTerms := processor.TermSet(answer)

	type pageKey struct {
		doc  string
		page int
	}
	index := make(map[pageKey]int)

	for _, src := range sources {
		score := ochiai(answerTerms, processor.TermSet(src.Text))
		key := pageKey{src.DocumentID, src.PageNumber}

		if i, seen := index[key]; seen {
			if score > citations[i].Score {
				citations[i].Score = score
				citations[i].Snippet = Snippet(src.Text)
			}
			continue
		}

		index[key] = len(citations)
		citations = append(citations, models.Provenance{
			DocumentID: src.DocumentID,
			PageNumber: src.PageNumber,
			Snippet:    Snippet(src.Text),
			Score:      score,
		})
	}

	var overlapping []models.Provenance
	for _, c := range citations {
		if c.Score > 0 {
			overlapping = append(overlapping, c)
		}
	}
	if len(overlapping) == 0 {
		if len(citations) > maxCitations {
			citations = citations[:maxCitations]
		}
		return citations, false
	}

	slices.SortStableFunc(overlapping, func(a, b models.Provenance) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(overlapping) > maxCitations {
		overlapping = overlapping[:maxCitations]
	}
	return overlapping, true
}

func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// Snippet shortens text for display, cutting at a word boundary
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}

	cut := string(runes[:snippetRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// IsNotEnoughInformation reports whether the answer is the model's
// refusal for lack of context
func IsNotEnoughInformation(answer string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(answer, "’", "'"))
	return strings.Contains(normalized, "don't have enough information") ||
		strings.Contains(normalized, "do not have enough information")
}

// FormatAnswer renders an answer followed by its sources
func FormatAnswer(answer *models.Answer) string {
	var sb strings.Builder

	sb.WriteString(answer.Text)
	sb.WriteString("\n\n")

	if len(answer.Provenance) > 0 {
		sb.WriteString("Sources:\n")
		for i, source := range answer.Provenance {
			sb.WriteString(fmt.Sprintf("  %d. [%s, Page: %d]\n", i+1, source.DocumentID, source.PageNumber))
		}
	}
	if answer.LowConfidence {
		sb.WriteString("\n(low confidence: the answer is not clearly supported by the loaded documents)\n")
	}

	return sb.String()
}
