// Package chi exposes the retrieval pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/domain"
	healthuc "github.com/calyx-ai/retrieval/internal/usecase/health"
	retrievaluc "github.com/calyx-ai/retrieval/internal/usecase/retrieval"
)

// Error response codes returned to clients.
const (
	CodeBadRequest    = "bad_request"
	CodeEmptyQuery    = "empty_query"
	CodeInternalError = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RetrieveRequest is the POST /v1/retrieve body.
type RetrieveRequest struct {
	Query          string            `json:"query"`
	Collection     string            `json:"collection,omitempty"`
	TopK           int               `json:"top_k,omitempty"`
	ScoreThreshold float64           `json:"score_threshold,omitempty"`
	TokenBudget    int               `json:"token_budget,omitempty"`
	Expand         *bool             `json:"expand,omitempty"`
	Rerank         *bool             `json:"rerank,omitempty"`
	Filter         map[string]string `json:"filter,omitempty"`
}

// RetrievedDocument is one scored document in the response.
type RetrievedDocument struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Score         float64        `json:"score"`
	Similarity    float64        `json:"similarity"`
	Lexical       float64        `json:"lexical"`
	SourceVariant string         `json:"source_variant,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RetrieveResponse is the POST /v1/retrieve response body.
type RetrieveResponse struct {
	Documents    []RetrievedDocument `json:"documents"`
	Truncated    bool                `json:"truncated"`
	VariantCount int                 `json:"variant_count"`
	LatencyMs    int64               `json:"latency_ms"`
}

// HealthResponse is the GET /health response body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Defaults holds the server-side toggles applied when a request omits them.
type Defaults struct {
	Expand bool
	Rerank bool
}

// Server routes HTTP requests to the retrieval and health services.
type Server struct {
	retrieval *retrievaluc.Service
	health    *healthuc.Service
	defaults  Defaults
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(retrieval *retrievaluc.Service, health *healthuc.Service, defaults Defaults, logger *zap.Logger) *Server {
	return &Server{retrieval: retrieval, health: health, defaults: defaults, logger: logger}
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/retrieve", s.Retrieve)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Retrieve handles POST /v1/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	opts := retrievaluc.Options{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		TokenBudget:    req.TokenBudget,
		Expand:         s.defaults.Expand,
		Rerank:         s.defaults.Rerank,
		Filter:         req.Filter,
		Collection:     req.Collection,
	}
	if req.Expand != nil {
		opts.Expand = *req.Expand
	}
	if req.Rerank != nil {
		opts.Rerank = *req.Rerank
	}

	result, err := s.retrieval.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	docs := make([]RetrievedDocument, len(result.Documents))
	for i := range result.Documents {
		c := &result.Documents[i]
		docs[i] = RetrievedDocument{
			ID:            c.ID(),
			Text:          c.Text(),
			Score:         c.HybridScore(),
			Similarity:    c.SimilarityScore(),
			Lexical:       c.LexicalScore(),
			SourceVariant: c.SourceVariant(),
			Metadata:      c.Metadata(),
		}
	}

	writeJSON(w, http.StatusOK, RetrieveResponse{
		Documents:    docs,
		Truncated:    result.Truncated,
		VariantCount: result.VariantCount,
		LatencyMs:    result.Latency.Milliseconds(),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report := s.health.Check(ctx)

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrMalformedRequest,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, CodeEmptyQuery, msg)
	case errors.Is(err, domain.ErrMalformedRequest):
		writeError(w, http.StatusBadRequest, CodeBadRequest, msg)
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}
