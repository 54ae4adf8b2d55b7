// Package pool manages a bounded set of index service connections and wraps
// every search call with retry, backoff, and a per-collection circuit breaker.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/index"
	"github.com/calyx-ai/retrieval/internal/metrics"
)

// Config holds pool sizing and timeout settings.
type Config struct {
	// MinConns handles are dialed eagerly at startup.
	MinConns int
	// MaxConns bounds the total number of live handles.
	MaxConns int
	// AcquireTimeout bounds the wait for a free handle.
	AcquireTimeout time.Duration
	// HealthCheckTimeout bounds the pre-handout health probe.
	HealthCheckTimeout time.Duration
	// SearchTimeout bounds one index call (each retry attempt separately).
	SearchTimeout time.Duration
}

// DefaultConfig returns the standard pool sizing.
func DefaultConfig() Config {
	return Config{
		MinConns:           5,
		MaxConns:           10,
		AcquireTimeout:     2 * time.Second,
		HealthCheckTimeout: 500 * time.Millisecond,
		SearchTimeout:      3 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxConns <= 0 {
		c.MaxConns = def.MaxConns
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = def.SearchTimeout
	}
}

// Conn is one pooled index handle. It is owned by exactly one caller between
// Acquire and Release.
type Conn struct {
	client index.SearchClient
}

// Pool is a bounded, health-checked set of index service handles.
// Safe for concurrent use from many simultaneous retrieval calls.
type Pool struct {
	factory  index.Factory
	cfg      Config
	retryCfg RetryConfig
	breakers *breakerGroup
	logger   *zap.Logger

	mu     sync.Mutex
	total  int
	closed bool
	idle   chan *Conn
}

// New creates a pool and eagerly dials MinConns handles. Dial failures during
// warm-up are logged and tolerated; handles are then created lazily on demand.
func New(ctx context.Context, factory index.Factory, cfg Config, retryCfg RetryConfig, breakerCfg BreakerConfig, logger *zap.Logger) *Pool {
	cfg.applyDefaults()
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = DefaultRetryConfig()
	}

	p := &Pool{
		factory:  factory,
		cfg:      cfg,
		retryCfg: retryCfg,
		breakers: newBreakerGroup(breakerCfg),
		logger:   logger,
		idle:     make(chan *Conn, cfg.MaxConns),
	}

	for i := 0; i < cfg.MinConns; i++ {
		if !p.tryReserve() {
			break
		}
		conn, err := p.dial(ctx)
		if err != nil {
			p.unreserve()
			p.logger.Warn("Pool warm-up dial failed", zap.Int("conn", i), zap.Error(err))
			break
		}
		p.putIdle(conn)
	}

	return p
}

// Acquire hands out a healthy connection, blocking up to AcquireTimeout.
// Exhaustion returns domain.ErrPoolExhausted; this is a backpressure signal
// and must not be retried by callers.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		if p.isClosed() {
			return nil, domain.ErrPoolClosed
		}

		select {
		case conn := <-p.idle:
			metrics.PoolConnections.WithLabelValues("idle").Dec()
			if !p.healthy(ctx, conn) {
				p.discard(conn)
				continue
			}
			p.markInUse()
			metrics.PoolAcquiresTotal.WithLabelValues("hit").Inc()
			return conn, nil
		default:
		}

		if p.tryReserve() {
			conn, err := p.dial(ctx)
			if err != nil {
				p.unreserve()
				metrics.PoolAcquiresTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("dial index service: %w", err)
			}
			p.markInUse()
			metrics.PoolAcquiresTotal.WithLabelValues("dial").Inc()
			return conn, nil
		}

		select {
		case conn := <-p.idle:
			metrics.PoolConnections.WithLabelValues("idle").Dec()
			if !p.healthy(ctx, conn) {
				p.discard(conn)
				continue
			}
			p.markInUse()
			metrics.PoolAcquiresTotal.WithLabelValues("hit").Inc()
			return conn, nil
		case <-timer.C:
			metrics.PoolAcquiresTotal.WithLabelValues("exhausted").Inc()
			return nil, domain.ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a connection to the idle set. A connection that errored
// during use is discarded; a replacement is dialed lazily on the next acquire.
func (p *Pool) Release(conn *Conn, callErr error) {
	if conn == nil {
		return
	}
	metrics.PoolConnections.WithLabelValues("in_use").Dec()

	if callErr != nil && !errors.Is(callErr, domain.ErrMalformedRequest) {
		p.discard(conn)
		return
	}
	if p.isClosed() {
		p.discard(conn)
		return
	}
	p.putIdle(conn)
}

// Search runs one index query through the breaker, the pool, and the retry
// policy. Transient failures retry with exponential backoff; malformed
// requests propagate immediately and do not count against the breaker.
func (p *Pool) Search(
	ctx context.Context, collection string,
	vector []float32, topK int, filter map[string]string,
) ([]index.Hit, error) {
	br := p.breakers.get(collection)
	probe, err := br.Allow()
	if err != nil {
		return nil, err
	}

	conn, err := p.Acquire(ctx)
	if err != nil {
		// Pool exhaustion is backpressure, not backend failure: the breaker
		// only tracks the health of the index service itself. An admitted
		// probe that never reached the backend hands its slot back.
		if probe {
			br.CancelProbe()
		}
		return nil, err
	}

	var hits []index.Hit
	attempt := 0
	err = retry(ctx, p.retryCfg, index.IsTransient, func() error {
		attempt++
		if attempt > 1 {
			metrics.SearchRetriesTotal.WithLabelValues(collection).Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.SearchTimeout)
		defer cancel()

		var searchErr error
		hits, searchErr = conn.client.Search(callCtx, collection, vector, topK, filter)
		return searchErr
	})

	p.Release(conn, err)

	if err != nil {
		if errors.Is(err, domain.ErrMalformedRequest) || errors.Is(err, context.Canceled) {
			// Caller-side errors carry no verdict on backend health.
			if probe {
				br.CancelProbe()
			}
			return nil, err
		}
		br.OnFailure()
		p.logger.Warn("Index search failed",
			zap.String("collection", collection),
			zap.String("state", br.State()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}

	br.OnSuccess()
	return hits, nil
}

// HealthCheck verifies the index service is reachable through the pool.
func (p *Pool) HealthCheck(ctx context.Context) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	err = conn.client.HealthCheck(ctx)
	p.Release(conn, err)
	return err
}

// Close discards all idle connections and rejects further acquires.
// Connections still in use are closed on release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.idle:
			metrics.PoolConnections.WithLabelValues("idle").Dec()
			p.discard(conn)
		default:
			return
		}
	}
}

// Breaker exposes the breaker for a collection (used by health reporting).
func (p *Pool) Breaker(collection string) *Breaker {
	return p.breakers.get(collection)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// tryReserve claims a slot for a new connection if the pool is not full.
func (p *Pool) tryReserve() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total >= p.cfg.MaxConns {
		return false
	}
	p.total++
	return true
}

func (p *Pool) unreserve() {
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
}

// dial creates a handle for an already reserved slot.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	client, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{client: client}, nil
}

func (p *Pool) healthy(ctx context.Context, conn *Conn) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()

	if err := conn.client.HealthCheck(probeCtx); err != nil {
		p.logger.Debug("Discarding unhealthy connection", zap.Error(err))
		return false
	}
	return true
}

func (p *Pool) discard(conn *Conn) {
	p.unreserve()
	if err := conn.client.Close(); err != nil {
		p.logger.Debug("Failed to close index connection", zap.Error(err))
	}
}

func (p *Pool) putIdle(conn *Conn) {
	select {
	case p.idle <- conn:
		metrics.PoolConnections.WithLabelValues("idle").Inc()
	default:
		// Idle set full: should not happen with reserved slots, but never block.
		p.discard(conn)
	}
}

func (p *Pool) markInUse() {
	metrics.PoolConnections.WithLabelValues("in_use").Inc()
}
