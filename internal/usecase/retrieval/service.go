// Package retrieval orchestrates the hybrid retrieval pipeline: query
// expansion, concurrent per-variant vector search, score fusion, optional
// reranking and token-budget truncation.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/calyx-ai/retrieval/internal/domain"
	"github.com/calyx-ai/retrieval/internal/domain/candidate"
	"github.com/calyx-ai/retrieval/internal/domain/query"
	"github.com/calyx-ai/retrieval/internal/metrics"
)

// Config carries the pipeline parameters shared by all requests.
type Config struct {
	Collection     string
	SemanticWeight float64       // weight of cosine similarity in the hybrid score
	LexicalWeight  float64       // weight of term overlap in the hybrid score
	TopKPerVariant int           // candidates fetched per query variant
	MaxVariants    int           // expansion cap, original query included
	FanOutLimit    int           // concurrent variant searches
	QueryTimeout   time.Duration // deadline for one Retrieve call
	RerankTopK     int           // candidates handed to the reranker
	RerankFinalK   int           // candidates kept after reranking
}

// ApplyDefaults fills zero values with the standard pipeline parameters.
func (c *Config) ApplyDefaults() {
	if c.SemanticWeight == 0 && c.LexicalWeight == 0 {
		c.SemanticWeight = 0.7
		c.LexicalWeight = 0.3
	}
	if c.TopKPerVariant <= 0 {
		c.TopKPerVariant = 50
	}
	if c.MaxVariants <= 0 {
		c.MaxVariants = 3
	}
	if c.FanOutLimit <= 0 {
		c.FanOutLimit = 4
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = 50
	}
	if c.RerankFinalK <= 0 {
		c.RerankFinalK = 10
	}
}

// Options are the per-request knobs of one Retrieve call.
type Options struct {
	TopK           int
	ScoreThreshold float64
	TokenBudget    int
	Expand         bool
	Rerank         bool
	Filter         map[string]string
	Collection     string // overrides Config.Collection when set
}

// Service runs the retrieval pipeline.
type Service struct {
	embedder Embedder
	pool     SearchPool
	expander Expander
	reranker Reranker
	audit    AuditSink
	cfg      Config
	logger   *zap.Logger
}

// New wires the pipeline. expander, reranker and audit may be nil, which
// disables the corresponding stage.
func New(
	embedder Embedder,
	pool SearchPool,
	expander Expander,
	reranker Reranker,
	audit AuditSink,
	cfg Config,
	logger *zap.Logger,
) *Service {
	cfg.ApplyDefaults()
	return &Service{
		embedder: embedder,
		pool:     pool,
		expander: expander,
		reranker: reranker,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
	}
}

// variantOutcome is the result of searching one query variant. Failures are
// captured here instead of propagating, so one broken variant never sinks
// the request.
type variantOutcome struct {
	variant    string
	candidates []candidate.Candidate
	err        error
}

// Retrieve runs the full pipeline for one query.
//
// Partial degradation is deliberate: per-variant failures are recorded and
// skipped, and only when every variant fails does the call return an empty
// (still non-error) result. Validation failures are the only hard errors.
func (s *Service) Retrieve(ctx context.Context, rawQuery string, opts Options) (candidate.Result, error) {
	start := time.Now()

	qc, err := query.New(rawQuery, opts.TopK, opts.ScoreThreshold, opts.TokenBudget)
	if err != nil {
		return candidate.Result{}, err
	}

	collection := opts.Collection
	if collection == "" {
		collection = s.cfg.Collection
	}

	if opts.Expand && s.expander != nil {
		qc = qc.WithVariants(s.expander.Expand(qc.RawQuery(), s.cfg.MaxVariants))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	outcomes := s.searchVariants(ctx, collection, qc, opts.Filter)

	lists := make([][]candidate.Candidate, 0, len(outcomes))
	failed := 0
	for _, out := range outcomes {
		if out.err != nil {
			failed++
			s.recordFailure(collection, out.err, qc.RawQuery())
			s.logger.Warn("Query variant failed",
				zap.String("collection", collection),
				zap.String("variant", out.variant),
				zap.Error(out.err),
			)
			continue
		}
		lists = append(lists, out.candidates)
	}

	result := candidate.Result{VariantCount: len(outcomes)}

	if failed == len(outcomes) {
		// Backend fully unavailable: degrade to an empty result so callers
		// can fall back to generation without retrieved context.
		s.logger.Error("All query variants failed",
			zap.String("collection", collection),
			zap.Int("variants", len(outcomes)),
		)
		result.Latency = time.Since(start)
		s.observe(collection, result)
		return result, nil
	}

	merged := mergeCandidates(lists)

	// The reranker sees the top RerankTopK of the merged list, not the
	// requested page size: a document at hybrid rank topK+1 can still win
	// the cross-encoder round. The topK cap applies to its output.
	if opts.Rerank && s.reranker != nil {
		merged = s.rerank(ctx, collection, qc.RawQuery(), merged)
	}
	if len(merged) > qc.TopK() {
		merged = merged[:qc.TopK()]
	}

	docs, truncated := truncateToBudget(merged, qc.TokenBudget())

	result.Documents = docs
	result.Truncated = truncated
	result.Latency = time.Since(start)
	s.observe(collection, result)

	s.logger.Info("Retrieval complete",
		zap.String("collection", collection),
		zap.Int("variants", len(outcomes)),
		zap.Int("variants_failed", failed),
		zap.Int("documents", len(docs)),
		zap.Bool("truncated", truncated),
		zap.Duration("latency", result.Latency),
	)
	return result, nil
}

// searchVariants embeds and searches every variant concurrently, bounded by
// FanOutLimit. Outcomes keep the variant order regardless of completion order.
func (s *Service) searchVariants(ctx context.Context, collection string, qc query.Context, filter map[string]string) []variantOutcome {
	variants := qc.Variants()
	outcomes := make([]variantOutcome, len(variants))

	var g errgroup.Group
	g.SetLimit(s.cfg.FanOutLimit)
	for i, variant := range variants {
		g.Go(func() error {
			cands, err := s.searchVariant(ctx, collection, variant, qc, filter)
			outcomes[i] = variantOutcome{variant: variant, candidates: cands, err: err}
			return nil
		})
	}
	// Goroutines never return errors; outcomes carry them.
	_ = g.Wait()
	return outcomes
}

// searchVariant runs embed + search for one variant and scores the hits.
// Lexical overlap is always computed against the original query, not the
// variant, so synonym substitution cannot inflate the lexical component.
func (s *Service) searchVariant(ctx context.Context, collection, variant string, qc query.Context, filter map[string]string) ([]candidate.Candidate, error) {
	enc, err := s.embedder.Encode(ctx, []string{variant})
	if err != nil {
		return nil, fmt.Errorf("embed variant: %w", err)
	}
	if len(enc.Vectors) != 1 {
		return nil, fmt.Errorf("embed variant: got %d vectors for one text", len(enc.Vectors))
	}

	hits, err := s.pool.Search(ctx, collection, enc.Vectors[0], s.cfg.TopKPerVariant, filter)
	if err != nil {
		return nil, fmt.Errorf("search variant: %w", err)
	}

	cands := make([]candidate.Candidate, 0, len(hits))
	for _, hit := range hits {
		similarity := clamp01(hit.Score)
		lexical := lexicalOverlap(qc.RawQuery(), hit.Text)
		hybrid := clamp01(s.cfg.SemanticWeight*similarity + s.cfg.LexicalWeight*lexical)
		if hybrid < qc.ScoreThreshold() {
			continue
		}
		cands = append(cands, candidate.New(hit.ID, hit.Text, hit.Payload, similarity, lexical, hybrid, variant))
	}
	return cands, nil
}

// rerank rescores the top candidates through the cross-encoder. A reranker
// failure degrades to the hybrid ordering instead of failing the request.
func (s *Service) rerank(ctx context.Context, collection, rawQuery string, cands []candidate.Candidate) []candidate.Candidate {
	if len(cands) == 0 {
		return cands
	}

	topN := len(cands)
	if topN > s.cfg.RerankTopK {
		topN = s.cfg.RerankTopK
	}
	texts := make([]string, topN)
	for i := range texts {
		texts[i] = cands[i].Text()
	}

	results, err := s.reranker.Rerank(ctx, rawQuery, texts, s.cfg.RerankFinalK)
	if err != nil {
		s.recordFailure(collection, err, rawQuery)
		s.logger.Warn("Reranker unavailable, keeping hybrid order",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return cands
	}

	reranked := make([]candidate.Candidate, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= topN {
			continue
		}
		reranked = append(reranked, cands[r.Index].Rescored(r.Score))
	}
	return reranked
}

func (s *Service) recordFailure(collection string, err error, rawQuery string) {
	if s.audit == nil {
		return
	}
	s.audit.RecordFailure(collection, domain.ErrorClass(err), rawQuery)
}

func (s *Service) observe(collection string, result candidate.Result) {
	metrics.RetrievalLatency.WithLabelValues(collection).Observe(result.Latency.Seconds())
	metrics.RetrievalHits.WithLabelValues(collection).Observe(float64(len(result.Documents)))
}
