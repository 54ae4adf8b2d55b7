// Package index defines the contract for the remote vector index service.
package index

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Hit is a single raw result returned by the index service.
type Hit struct {
	ID      string
	Score   float64
	Text    string
	Payload map[string]any
}

// SearchClient is one handle to the remote index service.
// Implementations are not required to be safe for concurrent use;
// the pool guarantees exclusive ownership while a handle is held.
type SearchClient interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Hit, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Factory creates a new index service handle.
type Factory func(ctx context.Context) (SearchClient, error)

// IsTransient reports whether an index call failure is worth retrying.
// Timeouts, resets, and server-side 5xx-equivalent gRPC codes are transient;
// everything else (invalid argument, missing collection) indicates a caller bug.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
			codes.Aborted, codes.Internal:
			return true
		}
	}
	return false
}
