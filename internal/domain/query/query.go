package query

import (
	"fmt"
	"strings"

	"github.com/calyx-ai/retrieval/internal/domain"
)

// Query parameter limits.
const (
	MaxQueryLength     = 4096
	DefaultTopK        = 10
	MaxTopK            = 100
	DefaultTokenBudget = 2048
	MaxTokenBudget     = 32768
)

// Context is a validated, immutable description of one retrieval call.
type Context struct {
	rawQuery       string
	variants       []string
	topK           int
	scoreThreshold float64
	tokenBudget    int
}

// New validates and normalizes retrieval parameters.
// Defaults: topK=10, tokenBudget=2048. The variant list starts as [rawQuery].
func New(rawQuery string, topK int, scoreThreshold float64, tokenBudget int) (Context, error) {
	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return Context{}, domain.ErrEmptyQuery
	}
	if len(rawQuery) > MaxQueryLength {
		return Context{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrMalformedRequest, MaxQueryLength)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if scoreThreshold < 0 || scoreThreshold > 1 {
		return Context{}, fmt.Errorf("%w: score threshold must be between 0 and 1", domain.ErrMalformedRequest)
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	if tokenBudget > MaxTokenBudget {
		tokenBudget = MaxTokenBudget
	}

	return Context{
		rawQuery:       rawQuery,
		variants:       []string{rawQuery},
		topK:           topK,
		scoreThreshold: scoreThreshold,
		tokenBudget:    tokenBudget,
	}, nil
}

// WithVariants returns a copy carrying the expanded variant list.
// The original query stays the first element; an empty list is ignored.
func (c Context) WithVariants(variants []string) Context {
	if len(variants) == 0 {
		return c
	}
	c.variants = variants
	return c
}

// RawQuery returns the original query text.
func (c *Context) RawQuery() string { return c.rawQuery }

// Variants returns the ordered query variants, original first.
func (c *Context) Variants() []string { return c.variants }

// TopK returns the number of final results requested.
func (c *Context) TopK() int { return c.topK }

// ScoreThreshold returns the minimum hybrid score for a candidate to survive.
func (c *Context) ScoreThreshold() float64 { return c.scoreThreshold }

// TokenBudget returns the cap on estimated tokens across returned documents.
func (c *Context) TokenBudget() int { return c.tokenBudget }
