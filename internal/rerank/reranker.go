// Package rerank rescores candidates via a remote cross-encoder model. The API shape is
// the common {model, query, documents, top_n} rerank contract served by
// SiliconFlow-, Jina-, and Cohere-compatible endpoints.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/domain"
)

// Result is one rescored document.
type Result struct {
	// Index is the position in the input documents slice.
	Index int
	// Score is the cross-encoder relevance score, normalized to [0,1].
	Score float64
}

// Config holds remote reranker settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls a remote cross-encoder rerank endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *zap.Logger
}

// New creates a rerank client.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  logger,
	}
}

// Rerank scores (query, document) pairs and returns results sorted by score
// descending, input index ascending on ties, truncated to keep. Fewer
// documents than keep returns all of them rescored. Empty input returns
// empty without a model call.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, keep int) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if keep <= 0 || keep > len(documents) {
		keep = len(documents)
	}

	payload := map[string]any{
		"model":     c.model,
		"query":     query,
		"documents": documents,
		"top_n":     keep,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w: %w", domain.ErrModelUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank API status %d: %s: %w",
			resp.StatusCode, string(detail), domain.ErrModelUnavailable)
	}

	var parsed struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, Result{Index: r.Index, Score: clamp01(r.Score)})
	}

	// Index is the secondary key so identical scores order deterministically.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	if len(results) > keep {
		results = results[:keep]
	}

	c.logger.Debug("Rerank completed",
		zap.String("model", c.model),
		zap.Int("documents", len(documents)),
		zap.Int("kept", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
