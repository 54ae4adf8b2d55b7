package candidate

import "time"

// Candidate is a document scored for one query during a single retrieval call.
type Candidate struct {
	id            string
	text          string
	metadata      map[string]any
	similarity    float64
	lexical       float64
	hybrid        float64
	sourceVariant string
}

// New creates a scored candidate.
func New(
	id, text string, metadata map[string]any,
	similarity, lexical, hybrid float64,
	sourceVariant string,
) Candidate {
	return Candidate{
		id: id, text: text, metadata: metadata,
		similarity: similarity, lexical: lexical, hybrid: hybrid,
		sourceVariant: sourceVariant,
	}
}

// ID returns the document identifier.
func (c *Candidate) ID() string { return c.id }

// Text returns the document text.
func (c *Candidate) Text() string { return c.text }

// Metadata returns the document payload fields.
func (c *Candidate) Metadata() map[string]any { return c.metadata }

// SimilarityScore returns the cosine similarity against the query vector.
func (c *Candidate) SimilarityScore() float64 { return c.similarity }

// LexicalScore returns the term-overlap score against the query.
func (c *Candidate) LexicalScore() float64 { return c.lexical }

// HybridScore returns the weighted combination of similarity and lexical scores.
func (c *Candidate) HybridScore() float64 { return c.hybrid }

// SourceVariant returns the query variant that retrieved this candidate.
func (c *Candidate) SourceVariant() string { return c.sourceVariant }

// Rescored returns a copy with a replacement final score (used after reranking).
func (c Candidate) Rescored(score float64) Candidate {
	c.hybrid = score
	return c
}

// Result is the outcome of one retrieval call. Not persisted.
type Result struct {
	Documents    []Candidate
	Truncated    bool
	VariantCount int
	Latency      time.Duration
}
