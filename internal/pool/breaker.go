package pool

import (
	"sync"
	"time"

	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/metrics"
)

// BreakerConfig holds circuit breaker settings for one target collection.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before allowing a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the standard breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 10,
		Cooldown:         30 * time.Second,
	}
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitHalfOpen:
		return "half_open"
	case circuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker guards one target collection against a failing index backend.
//
// closed --consecutive failures >= threshold--> open
// open --cooldown elapsed--> half-open (single probe)
// half-open --probe success--> closed, --probe failure--> open
type Breaker struct {
	collection string
	cfg        BreakerConfig

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker for the given collection.
func NewBreaker(collection string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{collection: collection, cfg: cfg}
}

// Allow reports whether a call may proceed. While the circuit is open it
// returns domain.ErrCircuitOpen without any network attempt. After the
// cooldown exactly one caller is admitted as the probe (probe true);
// concurrent callers keep failing fast until the probe resolves. A probe
// that exits without reaching the backend must call CancelProbe, otherwise
// the slot stays latched and no later caller can close the circuit.
func (b *Breaker) Allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return false, nil
	case circuitOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return false, domain.ErrCircuitOpen
		}
		b.setState(circuitHalfOpen)
		b.probing = true
		return true, nil
	default: // circuitHalfOpen
		if b.probing {
			return false, domain.ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	}
}

// CancelProbe releases the half-open probe slot without recording a backend
// verdict. Used when the admitted probe never reached the backend (pool
// exhaustion, caller cancellation); the next caller becomes the probe.
func (b *Breaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.probing = false
	}
}

// OnSuccess resets the breaker to closed.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.setState(circuitClosed)
}

// OnFailure records a backend failure. A failed half-open probe re-opens the
// circuit and restarts the cooldown.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.probing = false
		b.openedAt = time.Now()
		b.setState(circuitOpen)
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.openedAt = time.Now()
		b.setState(circuitOpen)
	}
}

// State returns the current state name for diagnostics.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// setState transitions the state and updates the gauge. Caller holds b.mu.
func (b *Breaker) setState(s circuitState) {
	b.state = s
	metrics.CircuitState.WithLabelValues(b.collection).Set(float64(s))
}

// breakerGroup tracks one breaker per target collection.
type breakerGroup struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

func newBreakerGroup(cfg BreakerConfig) *breakerGroup {
	return &breakerGroup{cfg: cfg, breakers: make(map[string]*Breaker)}
}

func (g *breakerGroup) get(collection string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[collection]
	if !ok {
		b = NewBreaker(collection, g.cfg)
		g.breakers[collection] = b
	}
	return b
}
