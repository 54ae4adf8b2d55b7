package retrieval

import (
	"context"

	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/index"
	"github.com/calyx-ai/retrieval/internal/rerank"
)

// Embedder vectorizes query text batches.
type Embedder interface {
	Encode(ctx context.Context, texts []string) (domain.EncodeResult, error)
}

// SearchPool runs index queries through the resilient connection pool.
type SearchPool interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]index.Hit, error)
}

// Expander produces query variants, original first. Never errors.
type Expander interface {
	Expand(query string, maxVariants int) []string
}

// Reranker rescores (query, document) pairs via a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, keep int) ([]rerank.Result, error)
}

// AuditSink receives failure records off the request path.
type AuditSink interface {
	RecordFailure(collection, errorClass, query string)
}
