package graph

import (
	"context"
	"fmt"
	"strings"

	"factweave/internal/core"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Strategy selects how the search query scores facts.
type Strategy string

const (
	StrategyHybrid      Strategy = "hybrid"
	StrategyVectorOnly  Strategy = "vector_only"
	StrategyKeywordOnly Strategy = "keyword_only"
)

// SearchParams carries one retrieval request into the graph store.
type SearchParams struct {
	Strategy      Strategy
	Variants      []string  // query phrasings for keyword matching
	Embedding     []float64 // query embedding; nil for keyword-only
	KeywordWeight float64
	VectorWeight  float64
	Limit         int
}

// ScoredFact is one ranked retrieval result.
type ScoredFact struct {
	ID         int64   `json:"id"`
	Statement  string  `json:"statement"`
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance"`
}

// keywordFragment scores a fact by whether any lowercased variant appears in
// its text or any triple field. A match is worth the fact's own confidence.
const keywordFragment = `CASE WHEN any(v IN $variants WHERE toLower(f.text) CONTAINS v
	OR toLower(f.subject) CONTAINS v
	OR toLower(f.predicate) CONTAINS v
	OR toLower(f.object) CONTAINS v)
	THEN f.confidence ELSE 0.0 END`

// cosineFragment computes cosine similarity between the stored embedding and
// the query embedding with plain list reduction, so no vector-index plugin is
// required. Zero-magnitude vectors score 0.
const cosineFragment = `CASE
	WHEN fnorm = 0.0 OR qnorm = 0.0 THEN 0.0
	ELSE dot / (fnorm * qnorm) END`

// BuildSearchQuery assembles the retrieval Cypher for the chosen strategy.
// All user-derived values travel as parameters; nothing is concatenated into
// the query text.
func BuildSearchQuery(p SearchParams) (string, map[string]any) {
	params := map[string]any{
		"variants":       lowercaseAll(p.Variants),
		"keyword_weight": p.KeywordWeight,
		"vector_weight":  p.VectorWeight,
		"limit":          p.Limit,
	}

	var b strings.Builder
	b.WriteString("MATCH (f:Fact)\n")

	switch p.Strategy {
	case StrategyKeywordOnly:
		b.WriteString("WITH f, " + keywordFragment + " AS keywordScore\n")
		b.WriteString("WITH f, $keyword_weight * keywordScore AS hybrid\n")
	case StrategyVectorOnly:
		params["embedding"] = p.Embedding
		b.WriteString(vectorStages(""))
		b.WriteString("WITH f, $vector_weight * cosine AS hybrid\n")
	default:
		params["embedding"] = p.Embedding
		b.WriteString("WITH f, " + keywordFragment + " AS keywordScore\n")
		b.WriteString(vectorStages("keywordScore, "))
		b.WriteString("WITH f, $keyword_weight * keywordScore + $vector_weight * cosine AS hybrid\n")
	}

	b.WriteString(`WITH f, hybrid * f.confidence *
	(CASE WHEN f.confidence > 0.8 THEN 1.2 ELSE 1.0 END) *
	(CASE WHEN f.confidence > 0.9 THEN 1.5 ELSE 1.0 END) AS finalScore
WHERE finalScore > 0
RETURN f.id AS id, f.text AS statement, f.subject AS subject,
       f.predicate AS predicate, f.object AS object,
       f.confidence AS confidence, finalScore AS relevance
ORDER BY finalScore DESC
LIMIT $limit`)

	return b.String(), params
}

// vectorStages computes the dot product and magnitudes, then the cosine.
// carry names extra columns to thread through the WITH stages.
func vectorStages(carry string) string {
	return `WITH f, ` + carry + `
	reduce(dot = 0.0, i IN range(0, size(f.embedding) - 1) | dot + f.embedding[i] * $embedding[i]) AS dot,
	sqrt(reduce(s = 0.0, x IN f.embedding | s + x * x)) AS fnorm,
	sqrt(reduce(s = 0.0, x IN $embedding | s + x * x)) AS qnorm
WITH f, ` + carry + cosineFragment + ` AS cosine
`
}

func lowercaseAll(variants []string) []string {
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Search executes one retrieval query in a read session.
func (g *Store) Search(ctx context.Context, p SearchParams) ([]ScoredFact, error) {
	cypher, params := BuildSearchQuery(p)

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph search failed: %w", err)
	}

	var facts []ScoredFact
	for _, record := range records.([]*neo4j.Record) {
		f, err := scanScoredFact(record)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func scanScoredFact(record *neo4j.Record) (ScoredFact, error) {
	var f ScoredFact
	m := record.AsMap()

	id, ok := m["id"].(int64)
	if !ok {
		return f, fmt.Errorf("graph search returned a fact without an integer id")
	}
	f.ID = id
	f.Statement, _ = m["statement"].(string)
	f.Subject, _ = m["subject"].(string)
	f.Predicate, _ = m["predicate"].(string)
	f.Object, _ = m["object"].(string)
	f.Confidence, _ = m["confidence"].(float64)
	f.Relevance, _ = m["relevance"].(float64)
	return f, nil
}

// FactNeighborhood returns the fact node and its asserting articles in a
// shape the UI can render directly.
func (g *Store) FactNeighborhood(ctx context.Context, factID int64) ([]map[string]any, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (f:Fact {id: $id})
			OPTIONAL MATCH (a:Article)-[:ASSERTED]->(f)
			RETURN f.id AS fact_id, f.text AS text, f.confidence AS confidence,
			       collect({id: a.id, title: a.title, url: a.url}) AS articles
		`, map[string]any{"id": factID})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load fact neighborhood: %w", err)
	}

	var elements []map[string]any
	for _, record := range records.([]*neo4j.Record) {
		m := record.AsMap()
		elements = append(elements, map[string]any{
			"group": "nodes",
			"data": map[string]any{
				"id":         fmt.Sprintf("fact-%v", m["fact_id"]),
				"label":      m["text"],
				"confidence": m["confidence"],
				"kind":       "fact",
			},
		})
		articles, _ := m["articles"].([]any)
		for _, raw := range articles {
			a, _ := raw.(map[string]any)
			if a == nil || a["id"] == nil {
				continue
			}
			articleID := fmt.Sprintf("article-%v", a["id"])
			elements = append(elements,
				map[string]any{
					"group": "nodes",
					"data": map[string]any{
						"id":    articleID,
						"label": a["title"],
						"url":   a["url"],
						"kind":  "article",
					},
				},
				map[string]any{
					"group": "edges",
					"data": map[string]any{
						"id":     fmt.Sprintf("%s-asserted-fact-%v", articleID, m["fact_id"]),
						"source": articleID,
						"target": fmt.Sprintf("fact-%v", m["fact_id"]),
						"label":  "ASSERTED",
					},
				},
			)
		}
	}
	return elements, nil
}

// PublishPayload is the transport document the publisher hands to the graph
// store, kept as an explicit type so it can be serialized and inspected.
type PublishPayload struct {
	Facts      []core.Fact    `json:"facts"`
	Articles   []core.Article `json:"articles"`
	Assertions []Assertion    `json:"assertions"`
}
