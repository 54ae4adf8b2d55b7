package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/index"
	healthuc "github.com/calyx-ai/retrieval/internal/usecase/health"
	retrievaluc "github.com/calyx-ai/retrieval/internal/usecase/retrieval"
)

// --- Mocks ---

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Encode(_ context.Context, texts []string) (domain.EncodeResult, error) {
	if s.err != nil {
		return domain.EncodeResult{}, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return domain.EncodeResult{Vectors: vectors}, nil
}

type stubPool struct {
	hits []index.Hit
	err  error
}

func (s *stubPool) Search(_ context.Context, _ string, _ []float32, _ int, _ map[string]string) ([]index.Hit, error) {
	return s.hits, s.err
}

type stubIndexChecker struct{ err error }

func (s *stubIndexChecker) HealthCheck(_ context.Context) error { return s.err }

func newTestServer(pool *stubPool, checker *stubIndexChecker) *Server {
	svc := retrievaluc.New(
		&stubEmbedder{}, pool, nil, nil, nil,
		retrievaluc.Config{Collection: "documents"},
		zap.NewNop(),
	)
	health := healthuc.New(checker, nil, nil)
	return NewServer(svc, health, Defaults{}, zap.NewNop())
}

// --- Tests ---

func TestRetrieve_OK(t *testing.T) {
	pool := &stubPool{hits: []index.Hit{
		{ID: "doc-1", Score: 0.9, Text: "alpha"},
		{ID: "doc-2", Score: 0.5, Text: "beta"},
	}}
	srv := newTestServer(pool, &stubIndexChecker{})

	body := `{"query": "alpha", "top_k": 5}`
	req := httptest.NewRequest("POST", "/v1/retrieve", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Retrieve(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp RetrieveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(resp.Documents))
	}
	if resp.Documents[0].ID != "doc-1" {
		t.Errorf("expected doc-1 first, got %s", resp.Documents[0].ID)
	}
	if resp.VariantCount != 1 {
		t.Errorf("expected 1 variant, got %d", resp.VariantCount)
	}
}

func TestRetrieve_EmptyQuery_400(t *testing.T) {
	srv := newTestServer(&stubPool{}, &stubIndexChecker{})

	req := httptest.NewRequest("POST", "/v1/retrieve", strings.NewReader(`{"query": "  "}`))
	rr := httptest.NewRecorder()
	srv.Retrieve(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != CodeEmptyQuery {
		t.Errorf("error code: got %s, want %s", errResp.Code, CodeEmptyQuery)
	}
}

func TestRetrieve_InvalidThreshold_400(t *testing.T) {
	srv := newTestServer(&stubPool{}, &stubIndexChecker{})

	body := `{"query": "alpha", "score_threshold": 1.5}`
	req := httptest.NewRequest("POST", "/v1/retrieve", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Retrieve(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRetrieve_InvalidJSON_400(t *testing.T) {
	srv := newTestServer(&stubPool{}, &stubIndexChecker{})

	req := httptest.NewRequest("POST", "/v1/retrieve", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	srv.Retrieve(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRetrieve_BackendDown_EmptyResult(t *testing.T) {
	pool := &stubPool{err: domain.ErrIndexUnavailable}
	srv := newTestServer(pool, &stubIndexChecker{})

	req := httptest.NewRequest("POST", "/v1/retrieve", strings.NewReader(`{"query": "alpha"}`))
	rr := httptest.NewRecorder()
	srv.Retrieve(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("degraded retrieval should still return 200, got %d", rr.Code)
	}

	var resp RetrieveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Documents) != 0 {
		t.Errorf("expected no documents, got %d", len(resp.Documents))
	}
}

func TestHealthCheck_OK(t *testing.T) {
	srv := newTestServer(&stubPool{}, &stubIndexChecker{})

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.Checks["index"] != "ok" {
		t.Errorf("expected index check ok, got %q", resp.Checks["index"])
	}
}

func TestHealthCheck_Degraded_503(t *testing.T) {
	srv := newTestServer(&stubPool{}, &stubIndexChecker{err: context.DeadlineExceeded})

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
