package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"factweave/internal/core"

	"github.com/lib/pq"
)

// Neighbor is the result of a nearest-neighbor lookup over fact embeddings.
// IsOriginal and ProvenanceID carry the neighbor's own verdict; EarliestNeighbor
// fills them, NearestFact leaves them nil.
type Neighbor struct {
	FactID       int64
	Distance     float64
	IsOriginal   *bool
	ProvenanceID *int64
}

// NearestFact returns the closest existing fact to the given embedding by
// cosine distance, or nil when the store holds no embedded facts. The dedupe
// gate uses this with a global scope.
func (s *Store) NearestFact(ctx context.Context, embedding []float64) (*Neighbor, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var n Neighbor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, embedding <=> $1::vector AS distance
		FROM extracted_facts
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT 1
	`, formatVector(embedding)).Scan(&n.FactID, &n.Distance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest fact: %w", err)
	}
	return &n, nil
}

// CommitDigest persists the surviving facts for one article and stamps
// processed_at, all in one transaction. External calls (extraction,
// embedding) must have completed before this runs; the lock window covers
// only the insert and the article stamp.
//
// A unique-constraint violation on an individual fact is treated as a no-op
// for that fact, not a transaction failure.
func (s *Store) CommitDigest(ctx context.Context, articleID int64, facts []core.Fact) (int, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, f := range facts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO extracted_facts (article_id, subject, predicate, object, confidence, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::vector, NOW())
		`, articleID, f.Subject, f.Predicate, f.Object, f.Confidence, formatVector(f.Embedding))
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				continue
			}
			return 0, fmt.Errorf("failed to insert fact: %w", err)
		}
		inserted++
	}

	if _, err := tx.ExecContext(ctx, `UPDATE articles SET processed_at = NOW() WHERE id = $1`, articleID); err != nil {
		return 0, fmt.Errorf("failed to stamp article %d: %w", articleID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit digest for article %d: %w", articleID, err)
	}
	return inserted, nil
}

// UncheckedFact couples a fact awaiting provenance with its article date and
// the number of external verification attempts spent on it so far.
type UncheckedFact struct {
	Fact        core.Fact
	ArticleDate *time.Time
	Attempts    int
}

// UncheckedFacts returns up to limit embedded facts that have not been
// provenance-checked, oldest first.
func (s *Store) UncheckedFacts(ctx context.Context, limit int) ([]UncheckedFact, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.article_id, f.subject, f.predicate, f.object, f.confidence,
		       f.embedding::text, f.created_at, f.hunt_attempts, a.published_date
		FROM extracted_facts f
		JOIN articles a ON a.id = f.article_id
		WHERE f.checked_at IS NULL AND f.embedding IS NOT NULL
		ORDER BY f.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unchecked facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UncheckedFact
	for rows.Next() {
		var u UncheckedFact
		var embText string
		if err := rows.Scan(&u.Fact.ID, &u.Fact.ArticleID, &u.Fact.Subject, &u.Fact.Predicate,
			&u.Fact.Object, &u.Fact.Confidence, &embText, &u.Fact.CreatedAt, &u.Attempts, &u.ArticleDate); err != nil {
			return nil, fmt.Errorf("failed to scan unchecked fact: %w", err)
		}
		emb, err := parseVector(embText)
		if err != nil {
			return nil, fmt.Errorf("fact %d: %w", u.Fact.ID, err)
		}
		u.Fact.Embedding = emb
		out = append(out, u)
	}
	return out, rows.Err()
}

// EarliestNeighbor finds the fact nearest to the embedding within tau cosine
// distance whose source article is strictly older than before, excluding the
// fact itself. Facts demoted by external evidence carry no internal provenance
// root and are skipped. Returns nil when no such fact exists.
func (s *Store) EarliestNeighbor(ctx context.Context, embedding []float64, tau float64, excludeID int64, before time.Time) (*Neighbor, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var n Neighbor
	var isOriginal sql.NullBool
	var provenanceID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.embedding <=> $1::vector AS distance, f.is_original, f.provenance_id
		FROM extracted_facts f
		JOIN articles a ON a.id = f.article_id
		WHERE f.id <> $2
		  AND f.embedding IS NOT NULL
		  AND f.embedding <=> $1::vector <= $3
		  AND a.published_date IS NOT NULL
		  AND a.published_date < $4
		  AND (f.is_original IS DISTINCT FROM FALSE OR f.provenance_id IS NOT NULL)
		ORDER BY a.published_date ASC
		LIMIT 1
	`, formatVector(embedding), excludeID, tau, before).Scan(&n.FactID, &n.Distance, &isOriginal, &provenanceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest neighbor: %w", err)
	}
	if isOriginal.Valid {
		n.IsOriginal = &isOriginal.Bool
	}
	if provenanceID.Valid {
		n.ProvenanceID = &provenanceID.Int64
	}
	return &n, nil
}

// MarkFactChecked records the provenance verdict for a fact. provenanceID is
// nil for originals and for facts whose provenance is an external reference.
func (s *Store) MarkFactChecked(ctx context.Context, factID int64, isOriginal bool, provenanceID *int64) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE extracted_facts
		SET checked_at = NOW(), is_original = $2, provenance_id = $3
		WHERE id = $1
	`, factID, isOriginal, provenanceID)
	if err != nil {
		return fmt.Errorf("failed to mark fact %d checked: %w", factID, err)
	}
	return nil
}

// MarkHuntDeferred counts one failed external verification attempt for a
// fact left unstamped.
func (s *Store) MarkHuntDeferred(ctx context.Context, factID int64) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE extracted_facts
		SET hunt_attempts = hunt_attempts + 1
		WHERE id = $1
	`, factID)
	if err != nil {
		return fmt.Errorf("failed to record hunt attempt for fact %d: %w", factID, err)
	}
	return nil
}

// PublishableFacts returns facts passing quality gate A: original and checked.
func (s *Store) PublishableFacts(ctx context.Context) ([]core.Fact, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, article_id, subject, predicate, object, confidence,
		       embedding::text, created_at, checked_at, is_original, provenance_id
		FROM extracted_facts
		WHERE is_original = TRUE AND checked_at IS NOT NULL AND embedding IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query publishable facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []core.Fact
	for rows.Next() {
		var f core.Fact
		var embText string
		if err := rows.Scan(&f.ID, &f.ArticleID, &f.Subject, &f.Predicate, &f.Object,
			&f.Confidence, &embText, &f.CreatedAt, &f.CheckedAt, &f.IsOriginal, &f.ProvenanceID); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		emb, err := parseVector(embText)
		if err != nil {
			return nil, fmt.Errorf("fact %d: %w", f.ID, err)
		}
		f.Embedding = emb
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// PublishableArticles returns articles passing quality gate B: processed
// sources of publishable facts, plus all reference articles.
func (s *Store) PublishableArticles(ctx context.Context) ([]core.Article, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT a.id, a.url, a.title, a.publisher, a.ingestion_source,
		       a.published_date, a.raw_text, a.processed_at, a.is_reference
		FROM articles a
		WHERE a.is_reference = TRUE
		   OR (a.processed_at IS NOT NULL AND EXISTS (
		         SELECT 1 FROM extracted_facts f
		         WHERE f.article_id = a.id
		           AND f.is_original = TRUE AND f.checked_at IS NOT NULL))
		ORDER BY a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query publishable articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []core.Article
	for rows.Next() {
		a, err := scanArticleRows(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}
