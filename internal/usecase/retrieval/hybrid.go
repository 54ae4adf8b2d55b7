package retrieval

import (
	"sort"
	"strings"

	"github.com/calyx-ai/retrieval/internal/domain/candidate"
)

// lexicalOverlap is the fraction of query terms present in the document text.
// Terms are lower-cased whitespace tokens with edge punctuation stripped.
// It is a cheap tie-breaker against purely semantic drift, not a BM25 stand-in.
func lexicalOverlap(query, text string) float64 {
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return 0
	}

	docTerms := make(map[string]struct{})
	for _, t := range terms(text) {
		docTerms[t] = struct{}{}
	}
	if len(docTerms) == 0 {
		return 0
	}

	matched := 0
	seen := make(map[string]struct{}, len(queryTerms))
	total := 0
	for _, t := range queryTerms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		total++
		if _, ok := docTerms[t]; ok {
			matched++
		}
	}

	return float64(matched) / float64(total)
}

func terms(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// mergeCandidates deduplicates across variants by document id (exact text as
// fallback key), keeping the highest hybrid score seen for a duplicate.
func mergeCandidates(lists [][]candidate.Candidate) []candidate.Candidate {
	best := make(map[string]candidate.Candidate)
	order := make([]string, 0)

	for _, list := range lists {
		for _, c := range list {
			key := c.ID()
			if key == "" {
				key = c.Text()
			}
			existing, ok := best[key]
			if !ok {
				best[key] = c
				order = append(order, key)
				continue
			}
			if c.HybridScore() > existing.HybridScore() {
				best[key] = c
			}
		}
	}

	merged := make([]candidate.Candidate, 0, len(best))
	for _, key := range order {
		merged = append(merged, best[key])
	}
	sortCandidates(merged)
	return merged
}

// sortCandidates orders by score descending with document id as the stable
// secondary key, so concurrent variant completion order never leaks into the
// final ordering.
func sortCandidates(cands []candidate.Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].HybridScore() != cands[j].HybridScore() {
			return cands[i].HybridScore() > cands[j].HybridScore()
		}
		return cands[i].ID() < cands[j].ID()
	})
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
