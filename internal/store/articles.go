package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"factweave/internal/core"
)

// UpsertArticle inserts an article keyed on its URL. It returns the article id
// and whether a new row was created. Re-ingesting a known URL is a no-op.
func (s *Store) UpsertArticle(ctx context.Context, article core.Article) (int64, bool, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO articles (url, title, publisher, ingestion_source, published_date, is_reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO NOTHING
		RETURNING id
	`, article.URL, article.Title, article.Publisher, string(article.Source), article.PublishedDate, article.IsReference).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to upsert article: %w", err)
	}

	// Conflict: the URL is already known.
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM articles WHERE url = $1`, article.URL).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to look up article by url: %w", err)
	}
	return id, false, nil
}

// UpsertReferenceArticle records an external provenance citation as an article.
// Reference articles never receive a queue entry.
func (s *Store) UpsertReferenceArticle(ctx context.Context, url string, publishedDate *time.Time) (int64, error) {
	id, _, err := s.UpsertArticle(ctx, core.Article{
		URL:           url,
		Source:        core.SourceRSS,
		PublishedDate: publishedDate,
		IsReference:   true,
	})
	return id, err
}

// GetArticle loads one article by id.
func (s *Store) GetArticle(ctx context.Context, id int64) (*core.Article, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, publisher, ingestion_source, published_date, raw_text, processed_at, is_reference
		FROM articles WHERE id = $1
	`, id)
	return scanArticle(row)
}

// UnprocessedArticles returns up to limit articles awaiting digestion,
// oldest first. Reference articles are never digested.
func (s *Store) UnprocessedArticles(ctx context.Context, limit int) ([]core.Article, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, publisher, ingestion_source, published_date, raw_text, processed_at, is_reference
		FROM articles
		WHERE processed_at IS NULL AND is_reference = FALSE AND url IS NOT NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed articles: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row *sql.Row) (*core.Article, error) {
	return scanArticleRows(row)
}

func scanArticleRows(row rowScanner) (*core.Article, error) {
	var a core.Article
	var source string
	if err := row.Scan(&a.ID, &a.URL, &a.Title, &a.Publisher, &source,
		&a.PublishedDate, &a.RawText, &a.ProcessedAt, &a.IsReference); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	a.Source = core.IngestionSource(source)
	return &a, nil
}
