// Package audit records retrieval failures off the request path.
package audit

import (
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/metrics"
)

// previewLimit caps how much query text leaves the pipeline in audit records.
const previewLimit = 64

// Event is one recorded retrieval failure.
type Event struct {
	Event        string
	Collection   string
	ErrorClass   string
	QueryPreview string
	At           time.Time
}

// Sink is an asynchronous, fire-and-forget failure recorder. Events are
// buffered and drained by a background goroutine; when the buffer is full
// events are dropped rather than blocking the caller's return path.
type Sink struct {
	events chan Event
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSink creates a sink draining into the logger and failure metrics.
func NewSink(logger *zap.Logger, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &Sink{
		events: make(chan Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// RecordFailure enqueues a retrieval failure event. Never blocks, and is
// safe against a concurrent Close: in-flight handlers can still record
// while the server drains, events after Close are silently dropped.
func (s *Sink) RecordFailure(collection, errorClass, query string) {
	ev := Event{
		Event:        "retrieval_failure",
		Collection:   collection,
		ErrorClass:   errorClass,
		QueryPreview: preview(query),
		At:           time.Now().UTC(),
	}

	// The mutex orders sends against close(s.events); a send racing the
	// close would panic.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Buffer full: auditing must never apply backpressure.
	}
}

// Close stops the drain goroutine after flushing buffered events. Idempotent.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) drain() {
	defer close(s.done)
	for ev := range s.events {
		metrics.RetrievalFailuresTotal.WithLabelValues(ev.Collection, ev.ErrorClass).Inc()
		s.logger.Warn("Retrieval failure",
			zap.String("event", ev.Event),
			zap.String("collection", ev.Collection),
			zap.String("error_class", ev.ErrorClass),
			zap.String("query_preview", ev.QueryPreview),
			zap.Time("at", ev.At),
		)
	}
}

// preview truncates query text to previewLimit runes.
func preview(query string) string {
	if utf8.RuneCountInString(query) <= previewLimit {
		return query
	}
	runes := []rune(query)
	return string(runes[:previewLimit]) + "…"
}
