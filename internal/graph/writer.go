package graph

import (
	"context"
	"fmt"
	"time"

	"factweave/internal/core"
)

// Assertion links a published fact back to its source article.
type Assertion struct {
	FactID       int64  `json:"id"`
	ArticleID    int64  `json:"article_id"`
	ProvenanceID *int64 `json:"provenance_id"`
	IsOriginal   bool   `json:"is_original"`
}

// MergeArticles upserts article nodes. Properties are overwritten on every
// run; the id is the merge key.
func (g *Store) MergeArticles(ctx context.Context, articles []core.Article) error {
	if len(articles) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		row := map[string]any{
			"id":           a.ID,
			"title":        a.Title,
			"url":          a.URL,
			"is_reference": a.IsReference,
		}
		if a.PublishedDate != nil {
			row["published_date"] = a.PublishedDate.UTC().Format(time.RFC3339)
		} else {
			row["published_date"] = nil
		}
		rows = append(rows, row)
	}

	err := g.write(ctx, `
		UNWIND $rows AS row
		MERGE (a:Article {id: row.id})
		SET a.title = row.title,
		    a.url = row.url,
		    a.published_date = row.published_date,
		    a.is_reference = row.is_reference
	`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("failed to merge articles: %w", err)
	}
	return nil
}

// MergeFacts upserts fact nodes including their embedding arrays.
func (g *Store) MergeFacts(ctx context.Context, facts []core.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, map[string]any{
			"id":         f.ID,
			"text":       f.Statement(),
			"subject":    f.Subject,
			"predicate":  f.Predicate,
			"object":     f.Object,
			"confidence": f.Confidence,
			"embedding":  f.Embedding,
		})
	}

	err := g.write(ctx, `
		UNWIND $rows AS row
		MERGE (f:Fact {id: row.id})
		SET f.text = row.text,
		    f.subject = row.subject,
		    f.predicate = row.predicate,
		    f.object = row.object,
		    f.confidence = row.confidence,
		    f.embedding = row.embedding
	`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("failed to merge facts: %w", err)
	}
	return nil
}

// MergeAssertions connects article nodes to fact nodes. Both endpoints must
// already exist; missing endpoints simply produce no edge and are completed
// by a later run.
func (g *Store) MergeAssertions(ctx context.Context, assertions []Assertion) error {
	if len(assertions) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(assertions))
	for _, as := range assertions {
		rows = append(rows, map[string]any{
			"fact_id":    as.FactID,
			"article_id": as.ArticleID,
		})
	}

	err := g.write(ctx, `
		UNWIND $rows AS row
		MATCH (a:Article {id: row.article_id})
		MATCH (f:Fact {id: row.fact_id})
		MERGE (a)-[:ASSERTED]->(f)
	`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("failed to merge assertions: %w", err)
	}
	return nil
}
