package domain

import "errors"

var (
	// ErrEmptyQuery signals a retrieval request without query text.
	ErrEmptyQuery = errors.New("empty query")
	// ErrMalformedRequest signals an invalid search request (caller bug, never retried).
	ErrMalformedRequest = errors.New("malformed request")
	// ErrPoolExhausted signals that no index connection became available in time.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrPoolClosed signals an operation on a closed pool.
	ErrPoolClosed = errors.New("connection pool closed")
	// ErrCircuitOpen signals a fast-fail while the index circuit is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrModelUnavailable signals that the embedding or rerank model cannot be reached.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrIndexUnavailable signals an index backend failure after retries.
	ErrIndexUnavailable = errors.New("index unavailable")
)

// ErrorClass maps a pipeline error to a short label for metrics and audit records.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrIndexUnavailable):
		return "index_unavailable"
	default:
		return "internal"
	}
}
