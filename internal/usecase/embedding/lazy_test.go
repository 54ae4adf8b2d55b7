package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/domain"
)

type fakeEmbedder struct {
	encodes atomic.Int32
}

func (f *fakeEmbedder) Encode(_ context.Context, texts []string) (domain.EncodeResult, error) {
	f.encodes.Add(1)
	return domain.EncodeResult{Vectors: make([][]float32, len(texts))}, nil
}

type fakeHealth struct {
	mu     sync.Mutex
	probes int
	err    error
}

func (f *fakeHealth) HealthCheck(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.err
}

func (f *fakeHealth) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func TestLazy_ProbesOnceThenReuses(t *testing.T) {
	health := &fakeHealth{}
	lazy := NewLazy(&fakeEmbedder{}, health, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := lazy.Encode(context.Background(), []string{"x"}); err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
	}

	if health.probeCount() != 1 {
		t.Errorf("expected 1 probe, got %d", health.probeCount())
	}
}

func TestLazy_FailedProbeNotLatched(t *testing.T) {
	health := &fakeHealth{err: domain.ErrModelUnavailable}
	inner := &fakeEmbedder{}
	lazy := NewLazy(inner, health, zap.NewNop())

	if _, err := lazy.Encode(context.Background(), []string{"x"}); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected probe failure, got %v", err)
	}
	if inner.encodes.Load() != 0 {
		t.Error("inner must not be called while the provider is unreachable")
	}

	// Provider comes back: the next call probes again and succeeds.
	health.mu.Lock()
	health.err = nil
	health.mu.Unlock()

	if _, err := lazy.Encode(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if health.probeCount() != 2 {
		t.Errorf("expected re-probe, got %d probes", health.probeCount())
	}
}

func TestLazy_ConcurrentFirstCallsShareProbe(t *testing.T) {
	health := &fakeHealth{}
	lazy := NewLazy(&fakeEmbedder{}, health, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = lazy.Encode(context.Background(), []string{"x"})
		}()
	}
	wg.Wait()

	if health.probeCount() != 1 {
		t.Errorf("expected single-flighted probe, got %d", health.probeCount())
	}
}

func TestLazy_NilHealthSkipsProbe(t *testing.T) {
	inner := &fakeEmbedder{}
	lazy := NewLazy(inner, nil, zap.NewNop())

	if _, err := lazy.Encode(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.encodes.Load() != 1 {
		t.Errorf("expected direct delegation, got %d encodes", inner.encodes.Load())
	}
}

func TestLazy_EmptyBatch(t *testing.T) {
	health := &fakeHealth{}
	lazy := NewLazy(&fakeEmbedder{}, health, zap.NewNop())

	result, err := lazy.Encode(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vectors) != 0 {
		t.Errorf("expected empty result, got %v", result.Vectors)
	}
	if health.probeCount() != 0 {
		t.Error("empty batch must not trigger the probe")
	}
}
