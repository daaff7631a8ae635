// Package provenance decides, per fact, whether it originates new information
// or restates something already on record, internally or on the open web.
package provenance

import (
	"context"
	"time"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/logger"
	"factweave/internal/search"
	"factweave/internal/store"
)

// FactStore is the slice of the fact store the hunter needs.
type FactStore interface {
	UncheckedFacts(ctx context.Context, limit int) ([]store.UncheckedFact, error)
	EarliestNeighbor(ctx context.Context, embedding []float64, tau float64, excludeID int64, before time.Time) (*store.Neighbor, error)
	MarkFactChecked(ctx context.Context, factID int64, isOriginal bool, provenanceID *int64) error
	MarkHuntDeferred(ctx context.Context, factID int64) error
	UpsertReferenceArticle(ctx context.Context, url string, publishedDate *time.Time) (int64, error)
}

// Hunter verifies fact originality against the store and external search.
type Hunter struct {
	store    FactStore
	searcher search.Provider
	cfg      config.Pipeline
}

// New creates a provenance hunter using the given search provider.
func New(fs FactStore, searcher search.Provider, cfg config.Pipeline) *Hunter {
	return &Hunter{store: fs, searcher: searcher, cfg: cfg}
}

// HuntOnce checks one batch of unchecked facts. A fact whose external search
// fails is left unstamped and retried next cycle, up to MaxAttempts; after
// that it is accepted as original. Everything else receives a verdict and
// checked_at on the first pass.
func (h *Hunter) HuntOnce(ctx context.Context) (core.StageSummary, error) {
	start := time.Now()
	summary := core.StageSummary{Stage: "hunt"}

	batch := h.cfg.BatchProvenance
	if batch <= 0 {
		batch = 25
	}
	facts, err := h.store.UncheckedFacts(ctx, batch)
	if err != nil {
		return summary, err
	}

	for _, f := range facts {
		if ctx.Err() != nil {
			break
		}
		stamped, err := h.huntOne(ctx, f)
		switch {
		case err != nil:
			logger.Warn("provenance check failed", "fact_id", f.Fact.ID, "error", err)
			summary.Failed++
		case stamped:
			summary.Processed++
		default:
			summary.Skipped++
		}
	}

	summary.Elapsed = time.Since(start)
	logger.Info("provenance cycle complete",
		"checked", summary.Processed,
		"deferred", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Elapsed.String())
	return summary, ctx.Err()
}

// huntOne runs the internal and external evidence searches for one fact and
// stamps the verdict. Returns false with a nil error when the fact is
// deliberately deferred to a later pass.
func (h *Hunter) huntOne(ctx context.Context, u store.UncheckedFact) (bool, error) {
	factDate := h.factDate(u)

	tau := h.cfg.TauProvenance
	if tau <= 0 {
		tau = 0.15
	}

	// Internal search: a semantically equivalent fact from a strictly
	// older article wins outright. Provenance edges may only point at
	// originals, so a demoted neighbor resolves to its own root and an
	// unchecked neighbor defers the fact until its verdict lands.
	neighbor, err := h.store.EarliestNeighbor(ctx, u.Fact.Embedding, tau, u.Fact.ID, factDate)
	if err != nil {
		return false, err
	}
	if neighbor != nil {
		if neighbor.IsOriginal == nil {
			logger.Debug("deferring fact until its neighbor is checked",
				"fact_id", u.Fact.ID, "neighbor_id", neighbor.FactID)
			return false, nil
		}
		if rootID, ok := provenanceRoot(neighbor); ok {
			if err := h.store.MarkFactChecked(ctx, u.Fact.ID, false, &rootID); err != nil {
				return false, err
			}
			logger.Debug("fact restates internal provenance",
				"fact_id", u.Fact.ID, "provenance_id", rootID, "distance", neighbor.Distance)
			return true, nil
		}
		// The neighbor was demoted by external evidence and has no
		// internal root; the external check decides this fact alone.
	}

	// External search: evidence published on or before the fact's article
	// date demotes the fact; its source is kept as a reference article.
	evidence, err := h.externalEvidence(ctx, u.Fact, factDate)
	if err != nil {
		maxAttempts := h.cfg.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 3
		}
		if u.Attempts+1 >= maxAttempts {
			logger.Warn("external verification attempts exhausted, accepting fact as original",
				"fact_id", u.Fact.ID, "attempts", u.Attempts+1, "error", err)
			if err := h.store.MarkFactChecked(ctx, u.Fact.ID, true, nil); err != nil {
				return false, err
			}
			return true, nil
		}
		if derr := h.store.MarkHuntDeferred(ctx, u.Fact.ID); derr != nil {
			return false, derr
		}
		logger.Warn("external search unavailable, deferring fact", "fact_id", u.Fact.ID, "error", err)
		return false, nil
	}
	if evidence != nil {
		published := evidence.PublishedAt
		if _, err := h.store.UpsertReferenceArticle(ctx, evidence.URL, &published); err != nil {
			return false, err
		}
		if err := h.store.MarkFactChecked(ctx, u.Fact.ID, false, nil); err != nil {
			return false, err
		}
		logger.Debug("fact restates external provenance", "fact_id", u.Fact.ID, "url", evidence.URL)
		return true, nil
	}

	if err := h.store.MarkFactChecked(ctx, u.Fact.ID, true, nil); err != nil {
		return false, err
	}
	return true, nil
}

// provenanceRoot resolves a checked neighbor to the original fact a
// provenance edge may point at: the neighbor itself when original, the
// neighbor's own provenance target when demoted internally. A neighbor
// demoted by external evidence has no internal root.
func provenanceRoot(n *store.Neighbor) (int64, bool) {
	if n.IsOriginal != nil && *n.IsOriginal {
		return n.FactID, true
	}
	if n.ProvenanceID != nil {
		return *n.ProvenanceID, true
	}
	return 0, false
}

// externalEvidence searches the web for the fact statement and returns the
// first dated result published on or before the fact's article date.
func (h *Hunter) externalEvidence(ctx context.Context, f core.Fact, factDate time.Time) (*search.Result, error) {
	results, err := h.searcher.Search(ctx, f.Statement(), search.Config{MaxResults: 10})
	if err != nil {
		return nil, err
	}
	for i := range results {
		r := results[i]
		if !r.Dated() {
			continue
		}
		if !r.PublishedAt.After(factDate) {
			return &r, nil
		}
	}
	return nil, nil
}

// factDate is the publication date used for originality comparison: the
// source article's date when known, the fact's creation time otherwise.
func (h *Hunter) factDate(u store.UncheckedFact) time.Time {
	if u.ArticleDate != nil {
		return *u.ArticleDate
	}
	return u.Fact.CreatedAt
}
