// Package ingest discovers new articles and enqueues them for hydration.
// Two workers share one contract: an RSS/Atom feed worker polling trusted
// outlets and an events worker consuming a tab-separated events export.
package ingest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"factweave/internal/core"
)

// RSS represents an RSS feed structure
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Atom represents an Atom feed structure
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// Channel represents an RSS channel
type Channel struct {
	Title string    `xml:"title"`
	Items []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item
type RSSItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	GUID    string `xml:"guid"`
}

// AtomLink represents an Atom link element
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomEntry represents an Atom entry
type AtomEntry struct {
	Title     string     `xml:"title"`
	Link      []AtomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	ID        string     `xml:"id"`
}

// ParsedFeed is the result of one feed fetch.
type ParsedFeed struct {
	Title        string
	Items        []core.FeedItem
	LastModified string
	ETag         string
	NotModified  bool
}

// FeedManager fetches and parses RSS/Atom feeds with conditional requests.
type FeedManager struct {
	client    *http.Client
	userAgent string
}

// NewFeedManager creates a new feed manager.
func NewFeedManager(timeout time.Duration, userAgent string) *FeedManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "Factweave Feed Reader/1.0"
	}
	return &FeedManager{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// FetchFeed fetches and parses a feed. lastModified and etag come from the
// previous fetch; a 304 response yields a ParsedFeed with NotModified set.
func (fm *FeedManager) FetchFeed(ctx context.Context, feedURL, lastModified, etag string) (*ParsedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Conditional headers let unchanged feeds answer with 304.
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	req.Header.Set("User-Agent", fm.userAgent)

	resp, err := fm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &ParsedFeed{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	parsed, err := ParseFeedBody(body)
	if err != nil {
		return nil, err
	}
	parsed.LastModified = resp.Header.Get("Last-Modified")
	parsed.ETag = resp.Header.Get("ETag")
	return parsed, nil
}

// ParseFeedBody attempts to parse the payload as RSS first, then Atom.
func ParseFeedBody(body []byte) (*ParsedFeed, error) {
	var rss RSS
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&rss); err == nil && rss.Channel.Title != "" {
		return parseRSS(rss), nil
	}

	var atom Atom
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&atom); err == nil && atom.Title != "" {
		return parseAtom(atom), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func parseRSS(rss RSS) *ParsedFeed {
	var items []core.FeedItem
	for _, item := range rss.Channel.Items {
		if strings.TrimSpace(item.Link) == "" {
			continue
		}
		items = append(items, core.FeedItem{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			GUID:      item.GUID,
			Published: parseRSSDate(item.PubDate),
		})
	}
	return &ParsedFeed{Title: rss.Channel.Title, Items: items}
}

func parseAtom(atom Atom) *ParsedFeed {
	var items []core.FeedItem
	for _, entry := range atom.Entries {
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if strings.TrimSpace(link) == "" {
			continue
		}

		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		items = append(items, core.FeedItem{
			Title:     strings.TrimSpace(entry.Title),
			Link:      strings.TrimSpace(link),
			GUID:      entry.ID,
			Published: parseAtomDate(published),
		})
	}
	return &ParsedFeed{Title: atom.Title, Items: items}
}

// parseRSSDate parses the date formats seen in RSS feeds in the wild.
func parseRSSDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(dateStr)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseAtomDate parses Atom dates (RFC3339, with RSS formats as fallback).
func parseAtomDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dateStr)); err == nil {
		return t.UTC()
	}
	return parseRSSDate(dateStr)
}
