package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/calyx-ai/retrieval/internal/domain"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		b.OnFailure()
		if _, err := b.Allow(); err != nil {
			t.Fatalf("breaker opened early after %d failures: %v", i+1, err)
		}
	}

	b.OnFailure()
	if _, err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen at threshold, got %v", err)
	}
	if b.State() != "open" {
		t.Errorf("expected open state, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()

	if _, err := b.Allow(); err != nil {
		t.Fatalf("expected closed after reset, got %v", err)
	}
}

func TestBreaker_ClosedCallsAreNotProbes(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	probe, err := b.Allow()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probe {
		t.Error("closed-state call must not be marked as a probe")
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 1, Cooldown: 5 * time.Millisecond})

	b.OnFailure()
	if _, err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected open, got %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// First caller after cooldown is admitted as the probe.
	probe, err := b.Allow()
	if err != nil {
		t.Fatalf("expected probe admitted, got %v", err)
	}
	if !probe {
		t.Error("expected the admitted caller marked as the probe")
	}
	if b.State() != "half_open" {
		t.Errorf("expected half_open, got %s", b.State())
	}

	// Concurrent callers fail fast until the probe resolves.
	if _, err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected concurrent caller rejected during probe, got %v", err)
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 1, Cooldown: 5 * time.Millisecond})

	b.OnFailure()
	time.Sleep(10 * time.Millisecond)
	if _, err := b.Allow(); err != nil {
		t.Fatalf("probe not admitted: %v", err)
	}

	b.OnSuccess()
	if b.State() != "closed" {
		t.Errorf("expected closed after probe success, got %s", b.State())
	}
	if _, err := b.Allow(); err != nil {
		t.Errorf("expected calls allowed after close, got %v", err)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	b.OnFailure()
	// Force the half-open path without waiting a minute.
	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * time.Minute)
	b.mu.Unlock()

	if _, err := b.Allow(); err != nil {
		t.Fatalf("probe not admitted: %v", err)
	}

	b.OnFailure()
	if b.State() != "open" {
		t.Errorf("expected re-opened after probe failure, got %s", b.State())
	}
	if _, err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected fast fail after re-open, got %v", err)
	}
}

func TestBreaker_CancelProbeFreesSlot(t *testing.T) {
	b := NewBreaker("docs", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	b.OnFailure()
	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * time.Minute)
	b.mu.Unlock()

	probe, err := b.Allow()
	if err != nil || !probe {
		t.Fatalf("probe not admitted: probe=%t err=%v", probe, err)
	}

	// The probe never reached the backend. Without the cancel the slot
	// would stay latched and every later caller would fail fast forever.
	b.CancelProbe()

	probe, err = b.Allow()
	if err != nil {
		t.Fatalf("expected next caller admitted after cancel, got %v", err)
	}
	if !probe {
		t.Error("expected next caller to become the probe")
	}

	b.OnSuccess()
	if b.State() != "closed" {
		t.Errorf("expected closed after replacement probe succeeds, got %s", b.State())
	}
}

func TestBreakerGroup_PerCollection(t *testing.T) {
	g := newBreakerGroup(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	g.get("a").OnFailure()

	if _, err := g.get("a").Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Error("expected collection a open")
	}
	if _, err := g.get("b").Allow(); err != nil {
		t.Errorf("collection b must be unaffected, got %v", err)
	}
	if g.get("a") != g.get("a") {
		t.Error("expected the same breaker instance per collection")
	}
}
