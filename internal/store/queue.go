package store

import (
	"context"
	"fmt"

	"factweave/internal/core"

	"github.com/lib/pq"
)

// HydrationJob is one pending queue entry joined with its article URL.
type HydrationJob struct {
	QueueID   int64
	ArticleID int64
	URL       string
	Attempts  int
}

// Enqueue creates a PENDING queue entry for an article. The partial unique
// index on open entries makes a second enqueue for the same article a no-op.
func (s *Store) Enqueue(ctx context.Context, articleID int64) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_queue (article_id, status)
		VALUES ($1, 'PENDING')
		ON CONFLICT DO NOTHING
	`, articleID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("failed to enqueue article %d: %w", articleID, err)
	}
	return nil
}

// PendingHydration returns up to limit PENDING entries whose article still
// lacks body text.
func (s *Store) PendingHydration(ctx context.Context, limit int) ([]HydrationJob, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.article_id, a.url, q.attempts
		FROM processing_queue q
		JOIN articles a ON a.id = q.article_id
		WHERE q.status = 'PENDING' AND a.raw_text IS NULL
		ORDER BY q.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []HydrationJob
	for rows.Next() {
		var j HydrationJob
		if err := rows.Scan(&j.QueueID, &j.ArticleID, &j.URL, &j.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkScraped stores the hydrated body text and flips the queue entry to
// SCRAPED in one transaction.
func (s *Store) MarkScraped(ctx context.Context, job HydrationJob, text string) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE articles SET raw_text = $1 WHERE id = $2`, text, job.ArticleID); err != nil {
		return fmt.Errorf("failed to store raw text: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE processing_queue SET status = $1, attempts = attempts + 1 WHERE id = $2
	`, string(core.StatusScraped), job.QueueID); err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	return tx.Commit()
}

// MarkHydrationFailure bumps the attempt counter and, once maxAttempts is
// reached, moves the entry to FAILED.
func (s *Store) MarkHydrationFailure(ctx context.Context, job HydrationJob, maxAttempts int) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	status := string(core.StatusPending)
	if job.Attempts+1 >= maxAttempts {
		status = string(core.StatusFailed)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue SET status = $1, attempts = attempts + 1 WHERE id = $2
	`, status, job.QueueID)
	if err != nil {
		return fmt.Errorf("failed to record hydration failure: %w", err)
	}
	return nil
}
