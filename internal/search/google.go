package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"factweave/internal/logger"
)

// GoogleProvider implements Provider using the Google Custom Search API.
// CSE result metadata often carries publication dates, which makes this the
// preferred provider for provenance verification.
type GoogleProvider struct {
	apiKey    string
	searchID  string
	client    *http.Client
	rateLimit time.Duration
	lastCall  time.Time
}

// NewGoogleProvider creates a new Google Custom Search provider.
func NewGoogleProvider(apiKey, searchID string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:    apiKey,
		searchID:  searchID,
		client:    &http.Client{Timeout: 30 * time.Second},
		rateLimit: 100 * time.Millisecond,
	}
}

// GetName returns the name of this provider.
func (g *GoogleProvider) GetName() string {
	return "Google Custom Search"
}

// googleResponse mirrors the parts of the CSE JSON payload we consume.
type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Pagemap struct {
			Metatags []map[string]string `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Search performs a search using the Google Custom Search API.
func (g *GoogleProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if elapsed := time.Since(g.lastCall); elapsed < g.rateLimit {
		time.Sleep(g.rateLimit - elapsed)
	}
	g.lastCall = time.Now()

	baseURL := "https://www.googleapis.com/customsearch/v1"
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.searchID)
	params.Set("q", query)
	// Google CSE allows max 10 results per request
	n := config.MaxResults
	if n <= 0 || n > 10 {
		n = 10
	}
	params.Set("num", strconv.Itoa(n))

	if config.SinceTime > 0 {
		params.Set("sort", "date:r:"+time.Now().Add(-config.SinceTime).Format("20060102"))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google CSE request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute Google CSE request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google CSE request failed with status: %d", resp.StatusCode)
	}

	var apiResponse googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse Google CSE response: %w", err)
	}
	if apiResponse.Error.Code != 0 {
		return nil, fmt.Errorf("google CSE API error (%d): %s", apiResponse.Error.Code, apiResponse.Error.Message)
	}

	var results []Result
	for i, item := range apiResponse.Items {
		results = append(results, Result{
			URL:         item.Link,
			Title:       item.Title,
			Snippet:     item.Snippet,
			Domain:      extractDomain(item.Link),
			PublishedAt: publishedFromMetatags(item.Pagemap.Metatags),
			Source:      "Google",
			Rank:        i + 1,
		})
	}

	logger.Debug("Google Custom Search completed", "query", query, "results_found", len(results))
	return results, nil
}

// metatag keys that commonly carry an article's publication timestamp,
// in order of preference.
var publishedMetaKeys = []string{
	"article:published_time",
	"og:article:published_time",
	"datepublished",
	"date",
	"dc.date.issued",
}

// publishedFromMetatags extracts a publication date from CSE pagemap metatags.
// Returns the zero time when no tag parses.
func publishedFromMetatags(metatags []map[string]string) time.Time {
	for _, tags := range metatags {
		for _, key := range publishedMetaKeys {
			val, ok := tags[key]
			if !ok || val == "" {
				continue
			}
			if t, ok := parseMetaDate(val); ok {
				return t
			}
		}
	}
	return time.Time{}
}

func parseMetaDate(val string) (time.Time, bool) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, val); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
