package retrieval

import (
	"strings"
	"testing"

	"github.com/calyx-ai/retrieval/internal/domain/candidate"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 2},           // ceil(4/3)
		{"one two", 3},       // ceil(8/3)
		{"one two three", 4}, // ceil(12/3)
		{"a b c d e f", 8},
		{"  spaced   out  ", 3},
	}

	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func cand(id string, words int) candidate.Candidate {
	text := strings.TrimSpace(strings.Repeat("word ", words))
	return candidate.New(id, text, nil, 0.5, 0, 0.5, "q")
}

func TestTruncateToBudget_AllFit(t *testing.T) {
	cands := []candidate.Candidate{cand("a", 30), cand("b", 30)} // 40 tokens each

	kept, truncated := truncateToBudget(cands, 100)
	if truncated {
		t.Error("unexpected truncation")
	}
	if len(kept) != 2 {
		t.Errorf("expected 2 kept, got %d", len(kept))
	}
}

func TestTruncateToBudget_DropsWholeDocuments(t *testing.T) {
	cands := []candidate.Candidate{cand("a", 30), cand("b", 30), cand("c", 30)}

	kept, truncated := truncateToBudget(cands, 90) // fits two 40-token docs
	if !truncated {
		t.Error("expected truncation")
	}
	if len(kept) != 2 {
		t.Fatalf("expected 2 kept, got %d", len(kept))
	}
	if kept[0].ID() != "a" || kept[1].ID() != "b" {
		t.Errorf("expected ranked prefix kept, got %s, %s", kept[0].ID(), kept[1].ID())
	}
}

func TestTruncateToBudget_FirstDocumentTooLarge(t *testing.T) {
	cands := []candidate.Candidate{cand("a", 300)}

	kept, truncated := truncateToBudget(cands, 100)
	if !truncated {
		t.Error("expected truncation")
	}
	if len(kept) != 0 {
		t.Errorf("expected no documents, got %d", len(kept))
	}
}

func TestTruncateToBudget_ZeroBudgetDisables(t *testing.T) {
	cands := []candidate.Candidate{cand("a", 300)}

	kept, truncated := truncateToBudget(cands, 0)
	if truncated {
		t.Error("zero budget must not truncate")
	}
	if len(kept) != 1 {
		t.Errorf("expected all kept, got %d", len(kept))
	}
}
