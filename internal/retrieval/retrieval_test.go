package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/graph"
)

type fakeLLM struct {
	variants  []string
	expandErr error
	embedding []float64
	embedErr  error
}

func (f *fakeLLM) ExpandQuery(ctx context.Context, query string, n int) ([]string, error) {
	if f.expandErr != nil {
		return nil, f.expandErr
	}
	return f.variants, nil
}

func (f *fakeLLM) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

// fakeGraph captures the search params and scores canned facts with the
// hybrid formula so ranking behavior is observable end to end.
type fakeGraph struct {
	lastParams graph.SearchParams
	facts      []graph.ScoredFact
	err        error
}

func (f *fakeGraph) Search(ctx context.Context, p graph.SearchParams) ([]graph.ScoredFact, error) {
	f.lastParams = p
	if f.err != nil {
		return nil, f.err
	}
	out := make([]graph.ScoredFact, len(f.facts))
	copy(out, f.facts)
	for i := range out {
		c := out[i].Confidence
		boost := 1.0
		if c > 0.8 {
			boost *= 1.2
		}
		if c > 0.9 {
			boost *= 1.5
		}
		// keyword and cosine both 1.0 in these fixtures
		hybrid := p.KeywordWeight*c + p.VectorWeight*1.0
		out[i].Relevance = hybrid * c * boost
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if p.Limit < len(out) {
		out = out[:p.Limit]
	}
	return out, nil
}

func validEmbedding() []float64 { return make([]float64, core.EmbeddingDim) }

func defaults() config.Retrieval {
	return config.Retrieval{ExpandVariants: 3, MaxResults: 15, KeywordWeight: 0.5, VectorWeight: 0.5}
}

func TestAnswerConfidenceBoostOrdering(t *testing.T) {
	g := &fakeGraph{facts: []graph.ScoredFact{
		{ID: 1, Statement: "x y z", Confidence: 0.50},
		{ID: 2, Statement: "x y z", Confidence: 0.95},
		{ID: 3, Statement: "x y z", Confidence: 0.85},
	}}
	e := New(&fakeLLM{embedding: validEmbedding()}, g, defaults())

	ans, err := e.Answer(context.Background(), "x y z")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(ans.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ans.Results))
	}
	gotOrder := []int64{ans.Results[0].ID, ans.Results[1].ID, ans.Results[2].ID}
	if gotOrder[0] != 2 || gotOrder[1] != 3 || gotOrder[2] != 1 {
		t.Errorf("boosted ordering wrong: got %v, want [2 3 1]", gotOrder)
	}
	for i := 1; i < len(ans.Results); i++ {
		if ans.Results[i].Relevance > ans.Results[i-1].Relevance {
			t.Error("relevance must be non-increasing")
		}
	}
}

func TestAnswerStrategySelection(t *testing.T) {
	tests := []struct {
		name      string
		llm       *fakeLLM
		want      graph.Strategy
		embedding bool
	}{
		{"hybrid", &fakeLLM{embedding: validEmbedding()}, graph.StrategyHybrid, true},
		{"vector-only on odd dimension", &fakeLLM{embedding: make([]float64, 128)}, graph.StrategyVectorOnly, true},
		{"keyword-only on embed failure", &fakeLLM{embedErr: errors.New("down")}, graph.StrategyKeywordOnly, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGraph{}
			e := New(tt.llm, g, defaults())
			ans, err := e.Answer(context.Background(), "anything")
			if err != nil {
				t.Fatalf("Answer failed: %v", err)
			}
			if ans.Strategy != tt.want {
				t.Errorf("strategy = %s, want %s", ans.Strategy, tt.want)
			}
			if got := g.lastParams.Embedding != nil; got != tt.embedding {
				t.Errorf("embedding passed = %v, want %v", got, tt.embedding)
			}
		})
	}
}

func TestAnswerExpansionFailureKeepsOriginalQuery(t *testing.T) {
	g := &fakeGraph{}
	e := New(&fakeLLM{expandErr: errors.New("llm busy"), embedding: validEmbedding()}, g, defaults())

	if _, err := e.Answer(context.Background(), "solar output 2024"); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(g.lastParams.Variants) != 1 || g.lastParams.Variants[0] != "solar output 2024" {
		t.Errorf("variants should fall back to the raw query, got %v", g.lastParams.Variants)
	}
}

func TestAnswerIncludesQueryAmongVariants(t *testing.T) {
	g := &fakeGraph{}
	e := New(&fakeLLM{
		variants:  []string{"solar production", "photovoltaic output"},
		embedding: validEmbedding(),
	}, g, defaults())

	if _, err := e.Answer(context.Background(), "solar output"); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(g.lastParams.Variants) != 3 || g.lastParams.Variants[0] != "solar output" {
		t.Errorf("unexpected variants %v", g.lastParams.Variants)
	}
}

func TestAnswerRejectsOversizedQuery(t *testing.T) {
	e := New(&fakeLLM{embedding: validEmbedding()}, &fakeGraph{}, defaults())
	if _, err := e.Answer(context.Background(), strings.Repeat("q", MaxQueryLength+1)); err == nil {
		t.Fatal("expected error for oversized query")
	}
	if _, err := e.Answer(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestAnswerEmptyResultIsNotError(t *testing.T) {
	e := New(&fakeLLM{embedding: validEmbedding()}, &fakeGraph{}, defaults())
	ans, err := e.Answer(context.Background(), "nothing matches this")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(ans.Results) != 0 {
		t.Errorf("expected empty result set, got %d", len(ans.Results))
	}
}

func TestAnswerGraphOutagePropagates(t *testing.T) {
	e := New(&fakeLLM{embedding: validEmbedding()}, &fakeGraph{err: errors.New("connection refused")}, defaults())
	if _, err := e.Answer(context.Background(), "query"); err == nil {
		t.Fatal("graph outage must surface as an error")
	}
}
