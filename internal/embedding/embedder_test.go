package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a one-dimensional vector holding the text length
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	inFlight atomic.Int32
	peak     atomic.Int32
	failOn   string
	err      error
	delay    time.Duration
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil && (f.failOn == "" || f.failOn == text) {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	f := &fakeEmbedder{delay: time.Millisecond}
	var progressCalls atomic.Int32
	vectors, err := EmbedBatch(context.Background(), f, texts, 3, func(processed, total int) {
		progressCalls.Add(1)
		assert.Equal(t, 25, total)
	})
	require.NoError(t, err)

	require.Len(t, vectors, 25)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i + 1)}, v)
	}
	assert.Equal(t, int32(25), progressCalls.Load())
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
}

func TestEmbedBatch_FailureReturnsNoPartialResult(t *testing.T) {
	cause := errors.New("model not loaded")
	f := &fakeEmbedder{err: cause, failOn: "bad"}

	texts := []string{"a", "b", "bad", "c"}
	vectors, err := EmbedBatch(context.Background(), f, texts, 1, nil)

	assert.Nil(t, vectors)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to embed text 2")
}

func TestEmbedBatch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EmbedBatch(ctx, &fakeEmbedder{}, []string{"a", "b"}, 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedBatch_Empty(t *testing.T) {
	vectors, err := EmbedBatch(context.Background(), &fakeEmbedder{}, nil, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()
	assert.Equal(t, "hashing/256", e.Name())

	q, err := e.Embed(ctx, "What is the fiscal deficit target for 2025?")
	require.NoError(t, err)
	require.Len(t, q, 256)

	again, err := e.Embed(ctx, "What is the fiscal deficit target for 2025?")
	require.NoError(t, err)
	assert.Equal(t, q, again, "embedding must be deterministic")

	relevant, _ := e.Embed(ctx, "The fiscal deficit target for 2025 is 4.9% of GDP")
	unrelated, _ := e.Embed(ctx, "Kisan credit cards will be extended to fishermen")
	assert.Greater(t, cosine(q, relevant), cosine(q, unrelated))
	assert.InDelta(t, 1.0, cosine(relevant, relevant), 1e-5)

	empty, err := e.Embed(ctx, "the of and")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 256), empty)

	assert.Equal(t, DefaultHashingDimensions, NewHashingEmbedder(0).Dimensions())
}

func ExampleHashingEmbedder() {
	e := NewHashingEmbedder(8)
	v, _ := e.Embed(context.Background(), "budget")
	fmt.Println(len(v))
	// Output: 8
}
