package graph

import (
	"strings"
	"testing"
)

func baseParams(strategy Strategy) SearchParams {
	return SearchParams{
		Strategy:      strategy,
		Variants:      []string{"Acme Merger", "  acme buys initech ", ""},
		Embedding:     make([]float64, 384),
		KeywordWeight: 0.5,
		VectorWeight:  0.5,
		Limit:         15,
	}
}

func TestBuildSearchQueryHybrid(t *testing.T) {
	cypher, params := BuildSearchQuery(baseParams(StrategyHybrid))

	for _, want := range []string{
		"$variants", "$embedding", "$keyword_weight", "$vector_weight", "$limit",
		"reduce(dot = 0.0",
		"f.confidence > 0.8 THEN 1.2",
		"f.confidence > 0.9 THEN 1.5",
		"ORDER BY finalScore DESC",
	} {
		if !strings.Contains(cypher, want) {
			t.Errorf("hybrid query missing %q", want)
		}
	}

	variants, ok := params["variants"].([]string)
	if !ok {
		t.Fatalf("variants param has wrong type %T", params["variants"])
	}
	if len(variants) != 2 {
		t.Fatalf("blank variants should be dropped, got %v", variants)
	}
	for _, v := range variants {
		if v != strings.ToLower(v) {
			t.Errorf("variant %q not lowercased", v)
		}
		if strings.Contains(cypher, v) {
			t.Errorf("variant %q concatenated into the query text", v)
		}
	}
	if params["limit"] != 15 {
		t.Errorf("limit param = %v", params["limit"])
	}
}

func TestBuildSearchQueryKeywordOnly(t *testing.T) {
	p := baseParams(StrategyKeywordOnly)
	p.Embedding = nil
	cypher, params := BuildSearchQuery(p)

	if strings.Contains(cypher, "$embedding") {
		t.Error("keyword-only query must not reference the embedding")
	}
	if _, ok := params["embedding"]; ok {
		t.Error("keyword-only query must not carry an embedding parameter")
	}
	if !strings.Contains(cypher, "keywordScore") {
		t.Error("keyword-only query missing keyword scoring")
	}
}

func TestBuildSearchQueryVectorOnly(t *testing.T) {
	cypher, params := BuildSearchQuery(baseParams(StrategyVectorOnly))

	if strings.Contains(cypher, "keywordScore") {
		t.Error("vector-only query must not score keywords")
	}
	if _, ok := params["embedding"]; !ok {
		t.Error("vector-only query must carry the embedding parameter")
	}
}

func TestBuildSearchQueryScoresThroughConfidence(t *testing.T) {
	// Every strategy multiplies the hybrid score by the fact confidence and
	// the two confidence boosts before ranking.
	for _, s := range []Strategy{StrategyHybrid, StrategyVectorOnly, StrategyKeywordOnly} {
		cypher, _ := BuildSearchQuery(baseParams(s))
		if !strings.Contains(cypher, "hybrid * f.confidence") {
			t.Errorf("strategy %s does not weight by confidence", s)
		}
	}
}
