package retrieval

import (
	"strings"

	"github.com/calyx-ai/retrieval/internal/domain/candidate"
)

// estimateTokens approximates the token count of a text as ceil(4*words/3),
// a deliberately conservative word-based heuristic. A non-empty text always
// costs at least one token.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	tokens := (words*4 + 2) / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// truncateToBudget keeps the longest prefix of cands whose combined token
// estimate fits within budget. Documents are dropped whole, never split, so
// the ranking order of the kept prefix is preserved.
func truncateToBudget(cands []candidate.Candidate, budget int) ([]candidate.Candidate, bool) {
	if budget <= 0 {
		return cands, false
	}

	used := 0
	for i, c := range cands {
		cost := estimateTokens(c.Text())
		if used+cost > budget {
			return cands[:i], true
		}
		used += cost
	}
	return cands, false
}
