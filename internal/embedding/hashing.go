package embedding

import (
	"context"
	"hash/fnv"
	"strconv"

	"budget-rag/internal/processor"
)

// DefaultHashingDimensions is the vector size of the hashing embedder
const DefaultHashingDimensions = 512

// HashingEmbedder maps terms and term bigrams into a fixed number of
// buckets. It needs no model or network and is deterministic, which makes it
// the offline default.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a hashing embedder with the given vector size
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Name returns the embedder identifier
func (e *HashingEmbedder) Name() string { return "hashing/" + strconv.Itoa(e.dimensions) }

// Dimensions returns the vector size
func (e *HashingEmbedder) Dimensions() int { return e.dimensions }

// Embed hashes the terms of text into a unit vector. Text without terms
// yields a zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dimensions)
	terms := processor.Terms(text)
	for i, term := range terms {
		e.add(vec, term, 1)
		if i > 0 {
			e.add(vec, terms[i-1]+" "+term, 0.5)
		}
	}

	Normalize(vec)
	return vec, nil
}

func (e *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	// The top bit picks the sign so that collisions tend to cancel out
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[sum%uint64(len(vec))] += weight
}
