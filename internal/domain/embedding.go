package domain

import (
	"context"
	"math"
)

// Embedder is the shared text vectorization contract between layers.
// Encode is batched: one output vector per input text, in input order.
// An empty input yields an empty result, not an error.
type Embedder interface {
	Encode(ctx context.Context, texts []string) (EncodeResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EncodeResult carries embedding vectors and token usage through the decorator chain.
type EncodeResult struct {
	Vectors      [][]float32
	PromptTokens int
	TotalTokens  int
}

// NormalizeL2 scales v to unit length in place and returns it.
// Zero vectors are returned unchanged.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
