// Package embcache caches embedding vectors in a key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/db"
	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/metrics"
)

const cacheKeyPrefix = "retrieval:emb_cache:"

// CachedEmbedder is a read-through cache decorator. Hits cost no provider
// tokens; misses are batched into a single inner call.
type CachedEmbedder struct {
	inner  domain.Embedder
	store  db.KV
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a caching decorator. A zero ttl means entries never expire.
func New(inner domain.Embedder, store db.KV, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: store, ttl: ttl, logger: logger}
}

// Encode returns cached vectors where possible and embeds only the misses.
// Token usage reflects the inner call alone.
func (c *CachedEmbedder) Encode(ctx context.Context, texts []string) (domain.EncodeResult, error) {
	if len(texts) == 0 {
		return domain.EncodeResult{}, nil
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.getFromCache(ctx, cacheKey(text)); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			vectors[i] = vec
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return domain.EncodeResult{Vectors: vectors}, nil
	}

	result, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return domain.EncodeResult{}, fmt.Errorf("embed cache misses: %w", err)
	}

	for j, i := range missIdx {
		vectors[i] = result.Vectors[j]
		c.putToCache(ctx, cacheKey(texts[i]), result.Vectors[j])
	}

	return domain.EncodeResult{
		Vectors:      vectors,
		PromptTokens: result.PromptTokens,
		TotalTokens:  result.TotalTokens,
	}, nil
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
