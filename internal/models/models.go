package models

import "time"

// Document represents a PDF loaded into a session
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Pages      []Page    `json:"pages"`
	TotalPages int       `json:"total_pages"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Page holds the cleaned text of a single PDF page
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// RawText joins the page texts in page order
func (d *Document) RawText() string {
	size := 0
	for _, p := range d.Pages {
		size += len(p.Text) + 2
	}

	buf := make([]byte, 0, size)
	for i, p := range d.Pages {
		if p.Text == "" {
			continue
		}
		if i > 0 && len(buf) > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// HasText reports whether any page carries extractable text
func (d *Document) HasText() bool {
	for _, p := range d.Pages {
		if p.Text != "" {
			return true
		}
	}
	return false
}

// Chunk represents a bounded segment of a document's text
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
	TotalPages int    `json:"total_pages"`
	Sequence   int    `json:"sequence"`
	Ordinal    int64  `json:"ordinal"`
	Text       string `json:"text"`
}

// ScoredChunk is a chunk paired with its relevance to a query
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Role names a conversation participant
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message of the chat history
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Mode selects how context is assembled for the LLM
type Mode string

const (
	// ModeRetrieval sends the top-K retrieved chunks
	ModeRetrieval Mode = "retrieval"
	// ModeWhole sends the concatenated text of every loaded document
	ModeWhole Mode = "whole"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeRetrieval || m == ModeWhole
}

// Query represents a user question
type Query struct {
	Question string `json:"question"`
	History  []Turn `json:"history,omitempty"`
	Mode     Mode   `json:"mode,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// Provenance links an answer back to the text it was grounded in
type Provenance struct {
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Answer represents the response from the LLM
type Answer struct {
	Text          string       `json:"answer"`
	Provenance    []Provenance `json:"sources"`
	Mode          Mode         `json:"mode"`
	Model         string       `json:"model"`
	LowConfidence bool         `json:"low_confidence"`
	Timestamp     string       `json:"timestamp"`
}
