package store

import (
	"context"
	"fmt"

	"factweave/internal/logger"
)

// migrations are applied in order; each entry runs at most once.
var migrations = []string{
	// 001: base schema
	`CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS articles (
		id               BIGSERIAL PRIMARY KEY,
		url              TEXT NOT NULL UNIQUE,
		title            TEXT NOT NULL DEFAULT '',
		publisher        TEXT NOT NULL DEFAULT '',
		ingestion_source TEXT NOT NULL DEFAULT 'RSS',
		published_date   TIMESTAMPTZ,
		raw_text         TEXT,
		processed_at     TIMESTAMPTZ,
		is_reference     BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS processing_queue (
		id         BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL REFERENCES articles(id),
		status     TEXT NOT NULL DEFAULT 'PENDING',
		attempts   INT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS extracted_facts (
		id            BIGSERIAL PRIMARY KEY,
		article_id    BIGINT NOT NULL REFERENCES articles(id),
		subject       TEXT NOT NULL,
		predicate     TEXT NOT NULL,
		object        TEXT NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL,
		embedding     vector(384),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		checked_at    TIMESTAMPTZ,
		is_original   BOOLEAN,
		provenance_id BIGINT REFERENCES extracted_facts(id)
	);`,

	// 002: indexes
	`CREATE INDEX IF NOT EXISTS idx_articles_processed_at ON articles (processed_at);
	CREATE INDEX IF NOT EXISTS idx_facts_checked_at ON extracted_facts (checked_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_open_article
		ON processing_queue (article_id) WHERE status = 'PENDING';`,

	// 003: HNSW index for cosine nearest-neighbor search
	`CREATE INDEX IF NOT EXISTS idx_facts_embedding_hnsw
		ON extracted_facts
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64);`,

	// 004: external verification attempt counter
	`ALTER TABLE extracted_facts
		ADD COLUMN IF NOT EXISTS hunt_attempts INT NOT NULL DEFAULT 0;`,
}

// Migrate applies any pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
		logger.Info("applied migration", "version", version)
	}

	return nil
}
