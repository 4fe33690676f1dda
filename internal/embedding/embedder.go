// Package embedding turns text into vectors for similarity search.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Embedder generates an embedding vector for a text
type Embedder interface {
	// Name identifies the provider and model, e.g. "ollama/nomic-embed-text"
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProgressFunc reports batch embedding progress
type ProgressFunc func(processed, total int)

// EmbedBatch generates embeddings for texts in parallel, with at most
// maxConcurrent requests in flight. The first failure cancels the remaining
// requests and is returned; no partial result is returned.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, maxConcurrent int, progress ProgressFunc) ([][]float32, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	semaphore := make(chan struct{}, maxConcurrent)
	errChan := make(chan error, len(texts))

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

launch:
	for i := range texts {
		select {
		case semaphore <- struct{}{}:
		case <-batchCtx.Done():
			break launch
		}

		wg.Add(1)
		go func(i int) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			vec, err := e.Embed(batchCtx, texts[i])
			if err != nil {
				errChan <- fmt.Errorf("failed to embed text %d: %w", i, err)
				cancel()
				return
			}
			vectors[i] = vec

			mu.Lock()
			processed++
			if progress != nil {
				progress(processed, len(texts))
			}
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return vectors, nil
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
