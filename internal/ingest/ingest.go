package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/logger"

	"golang.org/x/sync/errgroup"
)

// ArticleStore is the slice of the fact store the ingest workers need.
type ArticleStore interface {
	UpsertArticle(ctx context.Context, article core.Article) (int64, bool, error)
	Enqueue(ctx context.Context, articleID int64) error
}

// feedState caches conditional-request headers between polls of one feed.
type feedState struct {
	lastModified string
	etag         string
}

// Ingester runs the RSS and events workers against the fact store.
type Ingester struct {
	store  ArticleStore
	feeds  *FeedManager
	events *EventsClient
	cfg    config.Ingest

	mu    sync.Mutex
	state map[string]*feedState
}

// New creates an ingester for the configured feeds and events export.
func New(store ArticleStore, cfg config.Ingest) *Ingester {
	return &Ingester{
		store:  store,
		feeds:  NewFeedManager(cfg.Timeout, cfg.UserAgent),
		events: NewEventsClient(cfg.Timeout, cfg.UserAgent),
		cfg:    cfg,
	}
}

// IngestOnce polls every configured feed plus the events export and returns
// the number of new articles created. A failing source is logged and skipped;
// the next cycle retries it.
func (in *Ingester) IngestOnce(ctx context.Context) (int, error) {
	start := time.Now()
	var newArticles atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	limit := in.cfg.ConcurrentFeeds
	if limit <= 0 {
		limit = 3
	}
	g.SetLimit(limit)

	for _, feed := range in.cfg.Feeds {
		feed := feed
		g.Go(func() error {
			n, err := in.ingestFeed(gctx, feed)
			if err != nil {
				logger.Warn("feed ingest failed", "feed", feed.URL, "error", err)
				return nil
			}
			newArticles.Add(int64(n))
			return nil
		})
	}
	// Worker errors are absorbed above, so Wait only reports ctx cancellation.
	if err := g.Wait(); err != nil {
		return int(newArticles.Load()), err
	}

	if in.cfg.EventsURL != "" {
		n, err := in.ingestEvents(ctx)
		if err != nil {
			logger.Warn("events ingest failed", "url", in.cfg.EventsURL, "error", err)
		} else {
			newArticles.Add(int64(n))
		}
	}

	total := int(newArticles.Load())
	logger.Info("ingest cycle complete",
		"new_articles", total,
		"feeds", len(in.cfg.Feeds),
		"duration", time.Since(start).String())
	return total, ctx.Err()
}

// ingestFeed polls one feed and upserts its entries.
func (in *Ingester) ingestFeed(ctx context.Context, feed config.FeedConfig) (int, error) {
	st := in.feedState(feed.URL)

	parsed, err := in.feeds.FetchFeed(ctx, feed.URL, st.lastModified, st.etag)
	if err != nil {
		return 0, err
	}
	if parsed.NotModified {
		logger.Debug("feed not modified", "feed", feed.URL)
		return 0, nil
	}
	in.setFeedState(feed.URL, parsed.LastModified, parsed.ETag)

	created := 0
	for _, item := range parsed.Items {
		article := core.Article{
			URL:       item.Link,
			Title:     item.Title,
			Publisher: feed.Publisher,
			Source:    core.SourceRSS,
		}
		if !item.Published.IsZero() {
			published := item.Published
			article.PublishedDate = &published
		}

		id, inserted, err := in.store.UpsertArticle(ctx, article)
		if err != nil {
			logger.Warn("failed to upsert article", "url", item.Link, "error", err)
			continue
		}
		if !inserted {
			continue
		}
		if err := in.store.Enqueue(ctx, id); err != nil {
			logger.Warn("failed to enqueue article", "article_id", id, "error", err)
			continue
		}
		created++
	}
	return created, nil
}

// ingestEvents downloads the events export and upserts qualifying rows.
func (in *Ingester) ingestEvents(ctx context.Context) (int, error) {
	minMentions := in.cfg.MinMentions
	if minMentions <= 0 {
		minMentions = 10
	}

	rows, err := in.events.Fetch(ctx, in.cfg.EventsURL, minMentions)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, row := range rows {
		article := core.Article{
			URL:    row.URL,
			Source: core.SourceEvents,
		}
		if !row.Published.IsZero() {
			published := row.Published
			article.PublishedDate = &published
		}

		id, inserted, err := in.store.UpsertArticle(ctx, article)
		if err != nil {
			logger.Warn("failed to upsert events article", "url", row.URL, "error", err)
			continue
		}
		if !inserted {
			continue
		}
		if err := in.store.Enqueue(ctx, id); err != nil {
			logger.Warn("failed to enqueue events article", "article_id", id, "error", err)
			continue
		}
		created++
	}
	return created, nil
}

func (in *Ingester) feedState(url string) feedState {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == nil {
		in.state = make(map[string]*feedState)
	}
	if st, ok := in.state[url]; ok {
		return *st
	}
	return feedState{}
}

func (in *Ingester) setFeedState(url, lastModified, etag string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == nil {
		in.state = make(map[string]*feedState)
	}
	in.state[url] = &feedState{lastModified: lastModified, etag: etag}
}
