// Package embedding decorates the raw embedding provider with lazy
// initialization and request logging.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/calyx-ai/retrieval/internal/domain"
)

// LazyEmbedder defers the provider availability check until the first Encode
// and single-flights it: concurrent first callers share one probe instead of
// each hitting the provider. A failed probe is retried on the next call, so a
// temporarily unreachable provider never gets latched as broken.
type LazyEmbedder struct {
	inner  domain.Embedder
	health domain.HealthChecker
	logger *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	ready bool
}

// NewLazy wraps an embedder with single-flighted lazy initialization.
// health may be nil, in which case the first Encode itself is the probe.
func NewLazy(inner domain.Embedder, health domain.HealthChecker, logger *zap.Logger) *LazyEmbedder {
	return &LazyEmbedder{inner: inner, health: health, logger: logger}
}

// Encode ensures the provider is reachable, then delegates.
func (l *LazyEmbedder) Encode(ctx context.Context, texts []string) (domain.EncodeResult, error) {
	if len(texts) == 0 {
		return domain.EncodeResult{}, nil
	}

	if err := l.ensureReady(ctx); err != nil {
		return domain.EncodeResult{}, err
	}

	result, err := l.inner.Encode(ctx, texts)
	if err != nil {
		return domain.EncodeResult{}, fmt.Errorf("encode: %w", err)
	}
	return result, nil
}

func (l *LazyEmbedder) ensureReady(ctx context.Context) error {
	if l.isReady() || l.health == nil {
		return nil
	}

	_, err, shared := l.group.Do("init", func() (any, error) {
		if l.isReady() {
			return nil, nil
		}
		start := time.Now()
		if err := l.health.HealthCheck(ctx); err != nil {
			return nil, err
		}
		l.setReady()
		l.logger.Info("Embedding provider ready", zap.Duration("warmup", time.Since(start)))
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("embedder init (shared=%t): %w", shared, err)
	}
	return nil
}

func (l *LazyEmbedder) isReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *LazyEmbedder) setReady() {
	l.mu.Lock()
	l.ready = true
	l.mu.Unlock()
}
