// Package publish projects verified facts from the fact store into the
// knowledge graph. Writes are idempotent MERGEs; re-running a sync is safe.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"factweave/internal/core"
	"factweave/internal/graph"
	"factweave/internal/logger"
)

// FactStore is the slice of the fact store the publisher needs.
type FactStore interface {
	PublishableFacts(ctx context.Context) ([]core.Fact, error)
	PublishableArticles(ctx context.Context) ([]core.Article, error)
}

// GraphWriter is the graph-store surface the publisher writes through.
type GraphWriter interface {
	MergeArticles(ctx context.Context, articles []core.Article) error
	MergeFacts(ctx context.Context, facts []core.Fact) error
	MergeAssertions(ctx context.Context, assertions []graph.Assertion) error
}

// Publisher syncs the publishable subset of the fact store into the graph.
type Publisher struct {
	store FactStore
	graph GraphWriter
}

// New creates a publisher.
func New(fs FactStore, gw GraphWriter) *Publisher {
	return &Publisher{store: fs, graph: gw}
}

// BuildPayload selects everything passing the quality gates and assembles
// the transport document: original checked facts, their source articles plus
// all reference articles, and the assertion edges between them.
func (p *Publisher) BuildPayload(ctx context.Context) (*graph.PublishPayload, error) {
	facts, err := p.store.PublishableFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select publishable facts: %w", err)
	}
	articles, err := p.store.PublishableArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select publishable articles: %w", err)
	}

	assertions := make([]graph.Assertion, 0, len(facts))
	for _, f := range facts {
		isOriginal := f.IsOriginal != nil && *f.IsOriginal
		assertions = append(assertions, graph.Assertion{
			FactID:       f.ID,
			ArticleID:    f.ArticleID,
			ProvenanceID: f.ProvenanceID,
			IsOriginal:   isOriginal,
		})
	}

	return &graph.PublishPayload{
		Facts:      facts,
		Articles:   articles,
		Assertions: assertions,
	}, nil
}

// Encode serializes a payload as UTF-8 JSON terminated by a newline.
func Encode(payload *graph.PublishPayload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to encode publish payload: %w", err)
	}
	return buf.Bytes(), nil
}

// SyncOnce pushes one consistent snapshot into the graph store. Merge order
// is articles, then facts, then edges, so a partial failure leaves no edge
// without endpoints; the next run completes the remainder.
func (p *Publisher) SyncOnce(ctx context.Context) (core.StageSummary, error) {
	start := time.Now()
	summary := core.StageSummary{Stage: "publish"}

	payload, err := p.BuildPayload(ctx)
	if err != nil {
		return summary, err
	}
	if len(payload.Facts) == 0 && len(payload.Articles) == 0 {
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	if err := p.graph.MergeArticles(ctx, payload.Articles); err != nil {
		return summary, err
	}
	if err := p.graph.MergeFacts(ctx, payload.Facts); err != nil {
		return summary, err
	}
	if err := p.graph.MergeAssertions(ctx, payload.Assertions); err != nil {
		return summary, err
	}

	summary.Processed = len(payload.Facts)
	summary.Elapsed = time.Since(start)
	logger.Info("publish cycle complete",
		"facts", len(payload.Facts),
		"articles", len(payload.Articles),
		"assertions", len(payload.Assertions),
		"duration", summary.Elapsed.String())
	return summary, nil
}
