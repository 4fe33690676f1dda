package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget-rag/internal/models"
)

func makeDoc(id string, texts ...string) (*models.Document, []models.Chunk) {
	doc := &models.Document{ID: id, Name: id, TotalPages: len(texts)}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		doc.Pages = append(doc.Pages, models.Page{Number: i + 1, Text: text})
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("%s#p%d-%d", id, i+1, i),
			DocumentID: id,
			PageNumber: i + 1,
			Sequence:   i,
			Text:       text,
		}
	}
	return doc, chunks
}

func texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestPutAndGetAll(t *testing.T) {
	s := New()

	a, aChunks := makeDoc("a.pdf", "a1", "a2")
	b, bChunks := makeDoc("b.pdf", "b1")
	require.NoError(t, s.Put(a, aChunks))
	require.NoError(t, s.Put(b, bChunks))

	assert.Equal(t, []string{"a1", "a2", "b1"}, texts(s.GetAll()))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, s.ChunkCount())

	doc, chunks, ok := s.Get("a.pdf")
	require.True(t, ok)
	assert.Same(t, a, doc)
	assert.Len(t, chunks, 2)
}

func TestPut_ReplacesWithoutStaleChunks(t *testing.T) {
	s := New()

	a, aChunks := makeDoc("a.pdf", "old1", "old2", "old3")
	b, bChunks := makeDoc("b.pdf", "b1")
	require.NoError(t, s.Put(a, aChunks))
	require.NoError(t, s.Put(b, bChunks))

	a2, a2Chunks := makeDoc("a.pdf", "new1")
	require.NoError(t, s.Put(a2, a2Chunks))

	assert.Equal(t, []string{"new1", "b1"}, texts(s.GetAll()), "replaced document keeps its position")
	assert.Equal(t, 2, s.Len())

	// Putting the same content again is idempotent
	require.NoError(t, s.Put(a2, a2Chunks))
	assert.Equal(t, []string{"new1", "b1"}, texts(s.GetAll()))
}

func TestPut_RejectsForeignChunks(t *testing.T) {
	s := New()
	a, _ := makeDoc("a.pdf", "a1")
	_, bChunks := makeDoc("b.pdf", "b1")

	err := s.Put(a, bChunks)
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())

	assert.Error(t, s.Put(nil, nil))
	assert.Error(t, s.Put(&models.Document{}, nil))
}

func TestPut_ZeroChunks(t *testing.T) {
	s := New()
	doc := &models.Document{ID: "scan.pdf", TotalPages: 2}
	require.NoError(t, s.Put(doc, nil))

	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.GetAll())
}

func TestGetAll_ReturnsCopy(t *testing.T) {
	s := New()
	a, aChunks := makeDoc("a.pdf", "a1")
	require.NoError(t, s.Put(a, aChunks))

	aChunks[0].Text = "mutated input"
	all := s.GetAll()
	all[0].Text = "mutated output"

	assert.Equal(t, []string{"a1"}, texts(s.GetAll()))
}

func TestDeleteAndClear(t *testing.T) {
	s := New()
	a, aChunks := makeDoc("a.pdf", "a1")
	b, bChunks := makeDoc("b.pdf", "b1")
	require.NoError(t, s.Put(a, aChunks))
	require.NoError(t, s.Put(b, bChunks))

	assert.True(t, s.Delete("a.pdf"))
	assert.False(t, s.Delete("a.pdf"))
	assert.Equal(t, []string{"b1"}, texts(s.GetAll()))

	_, _, ok := s.Get("a.pdf")
	assert.False(t, ok)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Documents())
}

func TestConcurrentPuts(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, chunks := makeDoc(fmt.Sprintf("doc-%02d.pdf", i), "x", "y", "z")
			assert.NoError(t, s.Put(doc, chunks))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
	all := s.GetAll()
	require.Len(t, all, 60)

	// Chunks of one document stay contiguous and in sequence order
	for i := 0; i < len(all); i += 3 {
		assert.Equal(t, all[i].DocumentID, all[i+2].DocumentID)
		assert.Equal(t, []int{0, 1, 2}, []int{all[i].Sequence, all[i+1].Sequence, all[i+2].Sequence})
	}
}
