// Package digest turns hydrated articles into deduplicated, embedded facts.
package digest

import (
	"context"
	"errors"
	"time"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/fetch"
	"factweave/internal/logger"
	"factweave/internal/store"
)

// FactStore is the slice of the fact store the digester needs.
type FactStore interface {
	UnprocessedArticles(ctx context.Context, limit int) ([]core.Article, error)
	NearestFact(ctx context.Context, embedding []float64) (*store.Neighbor, error)
	CommitDigest(ctx context.Context, articleID int64, facts []core.Fact) (int, error)
}

// Extractor produces fact candidates from article text.
type Extractor interface {
	ExtractFacts(ctx context.Context, text string) ([]core.FactCandidate, error)
}

// Embedder produces a fixed-dimension vector for a short text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Digester extracts, embeds, deduplicates and persists facts per article.
type Digester struct {
	store     FactStore
	extractor Extractor
	embedder  Embedder
	fallback  fetch.Extractor // re-fetch for articles missing raw_text; may be nil
	cfg       config.Pipeline
}

// New creates a digester. fallback may be nil to disable re-fetching.
func New(fs FactStore, extractor Extractor, embedder Embedder, fallback fetch.Extractor, cfg config.Pipeline) *Digester {
	return &Digester{
		store:     fs,
		extractor: extractor,
		embedder:  embedder,
		fallback:  fallback,
		cfg:       cfg,
	}
}

// ProcessBatch digests one batch of unprocessed articles. Each article's
// fact inserts and processed_at stamp commit together; an article failing
// mid-way is left unstamped and retried next cycle. Cancellation between
// articles keeps whatever already committed.
func (d *Digester) ProcessBatch(ctx context.Context) (core.StageSummary, error) {
	start := time.Now()
	summary := core.StageSummary{Stage: "digest"}

	batch := d.cfg.BatchDigest
	if batch <= 0 {
		batch = 10
	}
	articles, err := d.store.UnprocessedArticles(ctx, batch)
	if err != nil {
		return summary, err
	}

	for _, article := range articles {
		if ctx.Err() != nil {
			break
		}
		switch err := d.digestArticle(ctx, article); {
		case err == nil:
			summary.Processed++
		case errors.Is(err, errSkipped):
			summary.Skipped++
		default:
			logger.Warn("digest failed for article", "article_id", article.ID, "error", err)
			summary.Failed++
		}
	}

	summary.Elapsed = time.Since(start)
	logger.Info("digest cycle complete",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Elapsed.String())
	return summary, ctx.Err()
}

// errSkipped marks an article left for a later cycle without counting as failure.
var errSkipped = errors.New("article skipped")

// digestArticle runs extract, embed, dedupe and commit for one article.
// All external calls finish before the commit transaction opens.
//
// An article that cannot be fetched, or whose extraction fails twice, is
// stamped with zero facts rather than retried forever.
func (d *Digester) digestArticle(ctx context.Context, article core.Article) error {
	text, err := d.articleText(ctx, article)
	if errors.Is(err, errSkipped) {
		// Hydration has not produced text yet; leave for a later cycle.
		return errSkipped
	}
	if err != nil {
		logger.Warn("fetch failed, stamping article with zero facts", "article_id", article.ID, "error", err)
		_, commitErr := d.store.CommitDigest(ctx, article.ID, nil)
		return commitErr
	}

	candidates, err := d.extractor.ExtractFacts(ctx, text)
	if err != nil {
		logger.Warn("extraction failed, retrying once", "article_id", article.ID, "error", err)
		candidates, err = d.extractor.ExtractFacts(ctx, text)
	}
	if err != nil {
		logger.Warn("extraction failed twice, stamping article with zero facts", "article_id", article.ID, "error", err)
		_, commitErr := d.store.CommitDigest(ctx, article.ID, nil)
		return commitErr
	}

	minConfidence := d.cfg.MinConfidence
	tau := d.cfg.TauDedupe
	if tau <= 0 {
		tau = 0.05
	}

	var kept []core.Fact
	for _, c := range candidates {
		if c.Subject == "" || c.Predicate == "" || c.Object == "" {
			continue
		}
		if c.Confidence < minConfidence {
			continue
		}

		embedding, err := d.embedder.GenerateEmbedding(ctx, c.Statement())
		if err != nil {
			// One bad embedding drops the candidate, not the article.
			logger.Warn("embedding failed, dropping candidate", "article_id", article.ID, "error", err)
			continue
		}
		if len(embedding) != core.EmbeddingDim {
			logger.Warn("embedding has wrong dimension, dropping candidate",
				"article_id", article.ID, "got", len(embedding))
			continue
		}

		if dup, err := d.isDuplicate(ctx, embedding, kept, tau); err != nil {
			return err
		} else if dup {
			continue
		}

		kept = append(kept, core.Fact{
			ArticleID:  article.ID,
			Subject:    c.Subject,
			Predicate:  c.Predicate,
			Object:     c.Object,
			Confidence: c.Confidence,
			Embedding:  embedding,
		})
	}

	inserted, err := d.store.CommitDigest(ctx, article.ID, kept)
	if err != nil {
		return err
	}
	logger.Debug("article digested",
		"article_id", article.ID,
		"candidates", len(candidates),
		"facts", inserted)
	return nil
}

// isDuplicate checks the new embedding against the store and against facts
// kept earlier in this batch.
func (d *Digester) isDuplicate(ctx context.Context, embedding []float64, kept []core.Fact, tau float64) (bool, error) {
	neighbor, err := d.store.NearestFact(ctx, embedding)
	if err != nil {
		return false, err
	}
	if neighbor != nil && neighbor.Distance <= tau {
		return true, nil
	}
	for _, f := range kept {
		if core.CosineDistance(embedding, f.Embedding) <= tau {
			return true, nil
		}
	}
	return false, nil
}

// articleText prefers the hydrated body and falls back to a direct fetch.
func (d *Digester) articleText(ctx context.Context, article core.Article) (string, error) {
	if article.RawText != nil && *article.RawText != "" {
		return *article.RawText, nil
	}
	if d.fallback == nil {
		return "", errSkipped
	}

	timeout := d.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := d.fallback.ExtractText(fetchCtx, article.URL)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("page has no extractable text")
	}
	return text, nil
}
