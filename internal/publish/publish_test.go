package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"factweave/internal/core"
	"factweave/internal/graph"
)

// fakePublishStore simulates quality gates A and B over a fixed fact set.
type fakePublishStore struct {
	facts []core.Fact
}

func (f *fakePublishStore) PublishableFacts(ctx context.Context) ([]core.Fact, error) {
	var out []core.Fact
	for _, fact := range f.facts {
		if fact.IsOriginal != nil && *fact.IsOriginal && fact.CheckedAt != nil {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakePublishStore) PublishableArticles(ctx context.Context) ([]core.Article, error) {
	seen := make(map[int64]bool)
	var out []core.Article
	for _, fact := range f.facts {
		if fact.IsOriginal != nil && *fact.IsOriginal && fact.CheckedAt != nil && !seen[fact.ArticleID] {
			seen[fact.ArticleID] = true
			out = append(out, core.Article{ID: fact.ArticleID, URL: "https://example.com"})
		}
	}
	return out, nil
}

// fakeGraph records merges and the order they arrived in.
type fakeGraph struct {
	order      []string
	facts      []core.Fact
	articles   []core.Article
	assertions []graph.Assertion
	failFacts  error
}

func (g *fakeGraph) MergeArticles(ctx context.Context, articles []core.Article) error {
	g.order = append(g.order, "articles")
	g.articles = append(g.articles, articles...)
	return nil
}

func (g *fakeGraph) MergeFacts(ctx context.Context, facts []core.Fact) error {
	g.order = append(g.order, "facts")
	if g.failFacts != nil {
		return g.failFacts
	}
	g.facts = append(g.facts, facts...)
	return nil
}

func (g *fakeGraph) MergeAssertions(ctx context.Context, assertions []graph.Assertion) error {
	g.order = append(g.order, "edges")
	g.assertions = append(g.assertions, assertions...)
	return nil
}

func boolPtr(b bool) *bool { return &b }

func checkedFact(id, articleID int64, original *bool, checked bool) core.Fact {
	f := core.Fact{
		ID:         id,
		ArticleID:  articleID,
		Subject:    "s",
		Predicate:  "p",
		Object:     "o",
		Confidence: 0.9,
		Embedding:  make([]float64, core.EmbeddingDim),
		IsOriginal: original,
	}
	if checked {
		now := time.Now().UTC()
		f.CheckedAt = &now
	}
	return f
}

func TestSyncOnceQualityGate(t *testing.T) {
	// 10 facts: 4 original+checked, 3 original but unchecked, 3 non-original.
	var facts []core.Fact
	for i := int64(1); i <= 4; i++ {
		facts = append(facts, checkedFact(i, i, boolPtr(true), true))
	}
	for i := int64(5); i <= 7; i++ {
		facts = append(facts, checkedFact(i, i, boolPtr(true), false))
	}
	for i := int64(8); i <= 10; i++ {
		facts = append(facts, checkedFact(i, i, boolPtr(false), true))
	}

	g := &fakeGraph{}
	p := New(&fakePublishStore{facts: facts}, g)

	summary, err := p.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce failed: %v", err)
	}
	if summary.Processed != 4 {
		t.Fatalf("expected 4 facts published, got %d", summary.Processed)
	}
	if len(g.facts) != 4 {
		t.Fatalf("graph should hold exactly 4 fact nodes, got %d", len(g.facts))
	}
	if len(g.assertions) != 4 {
		t.Errorf("expected 4 assertion edges, got %d", len(g.assertions))
	}
}

func TestSyncOnceMergeOrder(t *testing.T) {
	g := &fakeGraph{}
	p := New(&fakePublishStore{facts: []core.Fact{checkedFact(1, 1, boolPtr(true), true)}}, g)

	if _, err := p.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce failed: %v", err)
	}
	want := []string{"articles", "facts", "edges"}
	if len(g.order) != 3 || g.order[0] != want[0] || g.order[1] != want[1] || g.order[2] != want[2] {
		t.Errorf("merge order = %v, want %v", g.order, want)
	}
}

func TestSyncOncePartialFailureStopsBeforeEdges(t *testing.T) {
	g := &fakeGraph{failFacts: errors.New("graph unavailable")}
	p := New(&fakePublishStore{facts: []core.Fact{checkedFact(1, 1, boolPtr(true), true)}}, g)

	if _, err := p.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected error from failing fact merge")
	}
	for _, step := range g.order {
		if step == "edges" {
			t.Error("edges must not be merged after a fact merge failure")
		}
	}
}

func TestSyncOnceEmptySetIsNoOp(t *testing.T) {
	g := &fakeGraph{}
	p := New(&fakePublishStore{}, g)

	summary, err := p.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if len(g.order) != 0 {
		t.Errorf("no merges expected for an empty selection, got %v", g.order)
	}
}

func TestEncodePayload(t *testing.T) {
	payload := &graph.PublishPayload{
		Facts: []core.Fact{checkedFact(1, 2, boolPtr(true), true)},
		Articles: []core.Article{
			{ID: 2, URL: "https://example.com/a?x=1&y=2", Title: "A"},
		},
		Assertions: []graph.Assertion{{FactID: 1, ArticleID: 2, IsOriginal: true}},
	}

	data, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Error("payload must be newline-terminated")
	}
	s := string(data)
	if !strings.Contains(s, `"facts"`) || !strings.Contains(s, `"articles"`) || !strings.Contains(s, `"assertions"`) {
		t.Errorf("payload missing top-level keys: %s", s)
	}
	if strings.Contains(s, `\u0026`) {
		t.Error("HTML escaping should be disabled in the transport payload")
	}
}
