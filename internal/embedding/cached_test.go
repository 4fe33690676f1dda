package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"budget-rag/internal/cache"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("connection refused") }
func (failingKV) Set(context.Context, string, []byte) error   { return errors.New("connection refused") }

func TestCachedEmbedder_HitAfterMiss(t *testing.T) {
	inner := &fakeEmbedder{}
	kv := cache.NewMemory()
	c := NewCachedEmbedder(inner, kv, "test:", zap.NewNop())

	first, err := c.Embed(context.Background(), "budget")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "budget")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.Calls())
	assert.Equal(t, 1, kv.Len())
	assert.Equal(t, "fake", c.Name())
}

func TestCachedEmbedder_CorruptEntryFallsThrough(t *testing.T) {
	inner := &fakeEmbedder{}
	kv := cache.NewMemory()
	c := NewCachedEmbedder(inner, kv, "test:", zap.NewNop())

	require.NoError(t, kv.Set(context.Background(), c.cacheKey("budget"), []byte{1, 2, 3}))

	vec, err := c.Embed(context.Background(), "budget")
	require.NoError(t, err)
	assert.Equal(t, []float32{6}, vec)
	assert.Equal(t, 1, inner.Calls())
}

func TestCachedEmbedder_StoreFailureDoesNotFail(t *testing.T) {
	inner := &fakeEmbedder{}
	c := NewCachedEmbedder(inner, failingKV{}, "test:", zap.NewNop())

	vec, err := c.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)
}

func TestCachedEmbedder_InnerErrorNotCached(t *testing.T) {
	inner := &fakeEmbedder{err: errors.New("down")}
	kv := cache.NewMemory()
	c := NewCachedEmbedder(inner, kv, "test:", zap.NewNop())

	_, err := c.Embed(context.Background(), "abc")
	assert.Error(t, err)
	assert.Equal(t, 0, kv.Len())
}

func TestVectorBytesRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.75}
	got, err := bytesToVector(vectorToBytes(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = bytesToVector(nil)
	assert.Error(t, err)
}
