// internal/processor/pdf.go
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"budget-rag/internal/models"

	"github.com/ledongthuc/pdf"
)

// PDFProcessor handles PDF processing
type PDFProcessor struct {
	Chunker *Chunker
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(chunkSize, chunkOverlap int) *PDFProcessor {
	return &PDFProcessor{
		Chunker: NewChunker(WithChunkSize(chunkSize), WithOverlap(chunkOverlap)),
	}
}

// DocumentID derives the document identifier from a file name
func DocumentID(name string) string {
	return filepath.Base(strings.TrimSpace(name))
}

// ExtractText extracts cleaned text from PDF content, page by page
func (p *PDFProcessor) ExtractText(name string, data []byte) (doc *models.Document, err error) {
	id := DocumentID(name)

	// The pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &models.ExtractionError{Document: id, Reason: "corrupt file", Err: fmt.Errorf("%v", r)}
		}
	}()

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, &models.ExtractionError{Document: id, Reason: "not a PDF file"}
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, &models.ExtractionError{Document: id, Reason: "password-protected", Err: err}
		}
		return nil, &models.ExtractionError{Document: id, Reason: "corrupt file", Err: err}
	}

	total := r.NumPage()
	doc = &models.Document{
		ID:         id,
		Name:       name,
		TotalPages: total,
		Pages:      make([]models.Page, 0, total),
		IngestedAt: time.Now(),
	}

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, models.Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, &models.ExtractionError{Document: id, Reason: fmt.Sprintf("unreadable page %d", i), Err: err}
		}

		doc.Pages = append(doc.Pages, models.Page{Number: i, Text: Clean(text)})
	}

	return doc, nil
}

// ProcessPDF extracts a PDF and returns the document with its chunks.
// A document without extractable text yields zero chunks and no error.
func (p *PDFProcessor) ProcessPDF(ctx context.Context, name string, data []byte) (*models.Document, []models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	doc, err := p.ExtractText(name, data)
	if err != nil {
		return nil, nil, err
	}

	if !doc.HasText() {
		return doc, nil, nil
	}

	return doc, p.Chunker.ChunkDocument(doc), nil
}
