// Package hydrate fills in article body text for pending queue entries.
package hydrate

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/fetch"
	"factweave/internal/logger"
	"factweave/internal/store"

	"golang.org/x/sync/errgroup"
)

// errEmptyBody marks a page that fetched fine but produced no usable text.
var errEmptyBody = errors.New("no extractable text")

// QueueStore is the slice of the fact store the hydrator needs.
type QueueStore interface {
	PendingHydration(ctx context.Context, limit int) ([]store.HydrationJob, error)
	MarkScraped(ctx context.Context, job store.HydrationJob, text string) error
	MarkHydrationFailure(ctx context.Context, job store.HydrationJob, maxAttempts int) error
}

// Hydrator scrapes pending articles with bounded concurrency.
type Hydrator struct {
	store     QueueStore
	extractor fetch.Extractor
	cfg       config.Pipeline
}

// New creates a hydrator using the given extractor.
func New(qs QueueStore, extractor fetch.Extractor, cfg config.Pipeline) *Hydrator {
	return &Hydrator{store: qs, extractor: extractor, cfg: cfg}
}

// HydrateOnce takes one batch of pending queue entries, scrapes each URL
// under its own deadline, and records success or failure per entry. One
// page failing never aborts the batch.
func (h *Hydrator) HydrateOnce(ctx context.Context) (core.StageSummary, error) {
	start := time.Now()
	summary := core.StageSummary{Stage: "hydrate"}

	batch := h.cfg.BatchHydrate
	if batch <= 0 {
		batch = 20
	}
	jobs, err := h.store.PendingHydration(ctx, batch)
	if err != nil {
		return summary, err
	}
	if len(jobs) == 0 {
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	var processed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	limit := h.cfg.ConcurrentHydrate
	if limit <= 0 {
		limit = 5
	}
	g.SetLimit(limit)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := h.hydrateOne(gctx, job); err != nil {
				failed.Add(1)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.Processed = int(processed.Load())
	summary.Failed = int(failed.Load())
	summary.Elapsed = time.Since(start)
	logger.Info("hydrate cycle complete",
		"scraped", summary.Processed,
		"failed", summary.Failed,
		"duration", summary.Elapsed.String())
	return summary, ctx.Err()
}

// hydrateOne scrapes a single URL and records the outcome.
func (h *Hydrator) hydrateOne(ctx context.Context, job store.HydrationJob) error {
	timeout := h.cfg.HydrateTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := h.extractor.ExtractText(fetchCtx, job.URL)
	if err == nil && text == "" {
		err = errEmptyBody
	}
	if err != nil {
		logger.Warn("hydration failed", "url", job.URL, "attempts", job.Attempts+1, "error", err)
		maxAttempts := h.cfg.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 3
		}
		if markErr := h.store.MarkHydrationFailure(ctx, job, maxAttempts); markErr != nil {
			logger.Error("failed to record hydration failure", markErr, "queue_id", job.QueueID)
		}
		return err
	}

	if err := h.store.MarkScraped(ctx, job, text); err != nil {
		logger.Error("failed to store scraped text", err, "queue_id", job.QueueID)
		return err
	}
	logger.Debug("article hydrated", "article_id", job.ArticleID, "chars", len(text))
	return nil
}
