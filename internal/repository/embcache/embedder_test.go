package embcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/db"
	"github.com/calyx-ai/retrieval/internal/domain"
)

// --- Mocks ---

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	sets int
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = value
	return nil
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (c *countingEmbedder) Encode(_ context.Context, texts []string) (domain.EncodeResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, texts)
	c.mu.Unlock()
	if c.err != nil {
		return domain.EncodeResult{}, c.err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t)), 0.5}
	}
	return domain.EncodeResult{Vectors: vectors, TotalTokens: len(texts) * 3}, nil
}

// --- Tests ---

func TestEncode_MissThenHit(t *testing.T) {
	kv := newMemKV()
	inner := &countingEmbedder{}
	cached := New(inner, kv, time.Hour, zap.NewNop())

	first, err := cached.Encode(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	second, err := cached.Encode(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}

	if len(inner.calls) != 1 {
		t.Errorf("expected 1 inner call, got %d", len(inner.calls))
	}
	if len(second.Vectors) != 1 || len(second.Vectors[0]) != 2 {
		t.Fatalf("unexpected cached vector shape: %v", second.Vectors)
	}
	for i := range first.Vectors[0] {
		if first.Vectors[0][i] != second.Vectors[0][i] {
			t.Errorf("cached vector differs at %d: %f vs %f", i, first.Vectors[0][i], second.Vectors[0][i])
		}
	}
	if second.TotalTokens != 0 {
		t.Errorf("cache hit must not report provider tokens, got %d", second.TotalTokens)
	}
}

func TestEncode_PartialMissBatchesOnlyMisses(t *testing.T) {
	kv := newMemKV()
	inner := &countingEmbedder{}
	cached := New(inner, kv, time.Hour, zap.NewNop())

	if _, err := cached.Encode(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("warm: %v", err)
	}

	result, err := cached.Encode(context.Background(), []string{"a", "c", "b"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if len(inner.calls) != 2 {
		t.Fatalf("expected 2 inner calls, got %d", len(inner.calls))
	}
	if len(inner.calls[1]) != 1 || inner.calls[1][0] != "c" {
		t.Errorf("expected only miss embedded, got %v", inner.calls[1])
	}

	// Vector order must match input order regardless of hit/miss mix.
	if result.Vectors[0][0] != 1 || result.Vectors[1][0] != 1 || result.Vectors[2][0] != 1 {
		t.Errorf("vectors out of order: %v", result.Vectors)
	}
}

func TestEncode_EmptyBatch(t *testing.T) {
	cached := New(&countingEmbedder{}, newMemKV(), time.Hour, zap.NewNop())

	result, err := cached.Encode(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vectors) != 0 {
		t.Errorf("expected empty result, got %v", result.Vectors)
	}
}

func TestEncode_InnerErrorPropagates(t *testing.T) {
	inner := &countingEmbedder{err: domain.ErrModelUnavailable}
	cached := New(inner, newMemKV(), time.Hour, zap.NewNop())

	_, err := cached.Encode(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 0, 1e6}

	out, err := bytesToVector(vectorToBytes(in))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %f != %f", i, in[i], out[i])
		}
	}
}

func TestBytesToVector_RejectsTruncatedData(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for data not divisible by 4")
	}
}

func TestCacheKey_DistinctTexts(t *testing.T) {
	if cacheKey("a") == cacheKey("b") {
		t.Error("distinct texts must not collide")
	}
	if cacheKey("a") != cacheKey("a") {
		t.Error("cache key must be stable")
	}
}
