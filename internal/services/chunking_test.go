package services

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
)

func TestEstimateTokensRoundsUp(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  int
	}{
		{"empty", nil, 0},
		{"exact multiple", []string{strings.Repeat("a", 8)}, 2},
		{"rounds up", []string{strings.Repeat("a", 9)}, 3},
		{"sums across texts", []string{"ab", "cd"}, 1},
		{"single char", []string{"x"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.texts...); got != tt.want {
				t.Fatalf("EstimateTokens = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChunkCharBudget(t *testing.T) {
	spec := ModelSpec{Name: "m", ContextWindow: 10000, MaxCompletionTokens: 2000}
	if got := chunkCharBudget(spec); got != (10000-promptOverheadTokens-2000)*charsPerToken {
		t.Fatalf("chunkCharBudget = %d", got)
	}

	// Tiny windows clamp to the floor instead of going negative.
	tiny := ModelSpec{Name: "t", ContextWindow: 1000, MaxCompletionTokens: 900}
	if got := chunkCharBudget(tiny); got != 500*charsPerToken {
		t.Fatalf("chunkCharBudget floor = %d, want %d", got, 500*charsPerToken)
	}
}

func TestSplitIntoChunks(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		if got := splitIntoChunks("   ", 1000, 0); got != nil {
			t.Fatalf("chunks = %v, want nil", got)
		}
	})

	t.Run("fits in one chunk", func(t *testing.T) {
		got := splitIntoChunks("short text", 1000, 0)
		if len(got) != 1 || got[0] != "short text" {
			t.Fatalf("chunks = %v", got)
		}
	})

	t.Run("covers whole input", func(t *testing.T) {
		text := strings.Repeat("b", 950)
		got := splitIntoChunks(text, 300, 0)
		if len(got) != 4 {
			t.Fatalf("chunk count = %d, want 4", len(got))
		}
		total := 0
		for _, c := range got {
			total += len(c)
		}
		if total != len(text) {
			t.Fatalf("covered %d chars of %d", total, len(text))
		}
	})

	t.Run("overlap repeats tail of previous chunk", func(t *testing.T) {
		text := strings.Repeat("c", 600)
		got := splitIntoChunks(text, 400, 100)
		// step = 300: starts at 0, 300; second chunk runs to the end.
		if len(got) != 2 {
			t.Fatalf("chunk count = %d, want 2", len(got))
		}
		if len(got[0]) != 400 || len(got[1]) != 300 {
			t.Fatalf("chunk lengths = %d, %d", len(got[0]), len(got[1]))
		}
	})

	t.Run("overlap at or above size does not loop forever", func(t *testing.T) {
		got := splitIntoChunks(strings.Repeat("d", 500), 200, 200)
		if len(got) == 0 {
			t.Fatal("no chunks produced")
		}
	})
}

func TestExtractKeywordsDedupesAcrossChunks(t *testing.T) {
	log := testutil.Logger(t)
	catalog, err := LoadModelCatalog(log)
	if err != nil {
		t.Fatalf("LoadModelCatalog: %v", err)
	}

	svc, err := NewTextReductionService(log, &fakeAIClient{}, catalog)
	if err != nil {
		t.Fatalf("NewTextReductionService: %v", err)
	}

	// Large enough to split into several chunks; every chunk reports the same
	// two keywords, which must collapse to one pair.
	text := strings.Repeat("w", 3*chunkCharBudget(catalog.Default()))
	got, err := svc.ExtractKeywords(context.Background(), text, 10)
	if err != nil {
		t.Fatalf("ExtractKeywords: %v", err)
	}
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("keywords = %v, want [alpha beta]", got)
	}
}

func TestSummarizeDocumentSingleChunkPassesThrough(t *testing.T) {
	log := testutil.Logger(t)
	catalog, err := LoadModelCatalog(log)
	if err != nil {
		t.Fatalf("LoadModelCatalog: %v", err)
	}

	ai := &fakeAIClient{response: "the summary"}
	svc, err := NewTextReductionService(log, ai, catalog)
	if err != nil {
		t.Fatalf("NewTextReductionService: %v", err)
	}

	out, err := svc.SummarizeDocument(context.Background(), "a short document")
	if err != nil {
		t.Fatalf("SummarizeDocument: %v", err)
	}
	if out != "the summary" {
		t.Fatalf("summary = %q", out)
	}
	if ai.generateCount() != 1 {
		t.Fatalf("model calls = %d, want 1", ai.generateCount())
	}
}

func TestSummarizeDocumentReducesLargeInput(t *testing.T) {
	log := testutil.Logger(t)
	catalog, err := LoadModelCatalog(log)
	if err != nil {
		t.Fatalf("LoadModelCatalog: %v", err)
	}

	ai := &fakeAIClient{response: "condensed"}
	svc, err := NewTextReductionService(log, ai, catalog)
	if err != nil {
		t.Fatalf("NewTextReductionService: %v", err)
	}

	text := strings.Repeat("z", 2*chunkCharBudget(catalog.Default())+100)
	out, err := svc.SummarizeDocument(context.Background(), text)
	if err != nil {
		t.Fatalf("SummarizeDocument: %v", err)
	}
	if out != "condensed" {
		t.Fatalf("summary = %q", out)
	}
	// Three map calls for the chunks plus one final pass over the joined text.
	if ai.generateCount() != 4 {
		t.Fatalf("model calls = %d, want 4", ai.generateCount())
	}
}
