package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"budget-rag/internal/cache"
	"budget-rag/internal/metrics"
)

// KV is the key-value store the cache writes to
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder caches embeddings in a key-value store, keyed by embedder
// name and text hash
type CachedEmbedder struct {
	inner  Embedder
	store  KV
	prefix string
	logger *zap.Logger
}

// NewCachedEmbedder creates a caching decorator
func NewCachedEmbedder(inner Embedder, store KV, prefix string, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		prefix: prefix,
		logger: logger,
	}
}

// Name returns the name of the wrapped embedder
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Embed returns a cached embedding or calls the inner embedder. Cache
// failures are logged and never fail the call.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.get(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
	return vec, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.prefix + c.inner.Name() + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached embedding: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
