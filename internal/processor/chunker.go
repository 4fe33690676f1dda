package processor

import (
	"fmt"
	"strings"
	"unicode"

	"budget-rag/internal/models"
)

const (
	// DefaultChunkSize is the default number of characters per chunk
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of characters shared by consecutive chunks
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping fixed-size segments
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures a Chunker
type ChunkerOption func(*Chunker)

// WithChunkSize sets the chunk size in characters
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a chunker with the given options
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must stay below half a window so every cut moves forward
	if c.overlap*2 >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// ChunkSize returns the configured window size
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks. Each chunk after the first starts exactly
// Overlap characters before the end of the previous one.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= c.chunkSize {
		return []string{text}
	}

	chunks := make([]string, 0, n/(c.chunkSize-c.overlap)+1)
	start := 0
	for {
		end := start + c.chunkSize
		if end >= n {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := c.breakpoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.overlap
	}

	return chunks
}

// breakpoint prefers a paragraph break, then a sentence end, then a word
// boundary in the second half of the window, and falls back to a hard cut.
func (c *Chunker) breakpoint(runes []rune, start, end int) int {
	minCut := start + max(c.chunkSize/2, c.overlap+1)

	for i := end; i > minCut; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > minCut; i-- {
		if unicode.IsSpace(runes[i-1]) && isSentenceEnd(runes[i-2]) {
			return i
		}
	}
	for i := end; i > minCut; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '।'
}

// Merge reverses Split by dropping the overlapping prefix of every chunk after the first
func Merge(chunks []string, overlap int) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			b.WriteString(chunk)
			continue
		}
		runes := []rune(chunk)
		if overlap < len(runes) {
			b.WriteString(string(runes[overlap:]))
		}
	}
	return b.String()
}

// ChunkDocument splits each page of a document and tags the chunks with their source position
func (c *Chunker) ChunkDocument(doc *models.Document) []models.Chunk {
	var chunks []models.Chunk
	sequence := 0

	for _, page := range doc.Pages {
		for _, text := range c.Split(page.Text) {
			chunks = append(chunks, models.Chunk{
				ID:         ChunkID(doc.ID, page.Number, sequence),
				DocumentID: doc.ID,
				PageNumber: page.Number,
				TotalPages: doc.TotalPages,
				Sequence:   sequence,
				Text:       text,
			})
			sequence++
		}
	}

	return chunks
}

// ChunkID builds the stable identifier of a chunk
func ChunkID(documentID string, page, sequence int) string {
	return fmt.Sprintf("%s#p%d-%d", documentID, page, sequence)
}
