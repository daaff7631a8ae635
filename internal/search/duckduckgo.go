package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"factweave/internal/logger"
)

// DuckDuckGoProvider implements the Provider interface using DuckDuckGo.
// The HTML endpoint carries no publication dates, so its results never
// qualify as provenance evidence on their own.
type DuckDuckGoProvider struct {
	client    *http.Client
	userAgent string
	rateLimit time.Duration
	lastCall  time.Time
}

// NewDuckDuckGoProvider creates a new DuckDuckGo search provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		rateLimit: 2 * time.Second, // Be respectful with rate limiting
	}
}

// GetName returns the name of this provider.
func (d *DuckDuckGoProvider) GetName() string {
	return "DuckDuckGo"
}

// Search performs a search using DuckDuckGo and returns results.
func (d *DuckDuckGoProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if elapsed := time.Since(d.lastCall); elapsed < d.rateLimit {
		time.Sleep(d.rateLimit - elapsed)
	}
	d.lastCall = time.Now()

	searchURL := d.buildSearchURL(query, config)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	bodyStr := string(body)
	if strings.Contains(bodyStr, "captcha") || strings.Contains(bodyStr, "Captcha") {
		return nil, fmt.Errorf("DuckDuckGo search blocked by CAPTCHA")
	}

	results := d.parseSearchResults(bodyStr, config.MaxResults)
	logger.Debug("DuckDuckGo search completed", "query", query, "results_found", len(results))

	return results, nil
}

// buildSearchURL constructs the DuckDuckGo search URL with parameters.
func (d *DuckDuckGoProvider) buildSearchURL(query string, config Config) string {
	baseURL := "https://html.duckduckgo.com/html/"
	params := url.Values{}

	if config.SinceTime > 0 {
		days := int(config.SinceTime.Hours() / 24)
		switch {
		case days <= 1:
			params.Set("df", "d")
		case days <= 7:
			params.Set("df", "w")
		case days <= 30:
			params.Set("df", "m")
		case days <= 365:
			params.Set("df", "y")
		}
	}

	params.Set("q", query)
	params.Set("b", "0")
	params.Set("kl", "us-en")

	return baseURL + "?" + params.Encode()
}

var (
	ddgResultPattern  = regexp.MustCompile(`<div class="result[^"]*"[^>]*>(.*?)</div>`)
	ddgTitlePattern   = regexp.MustCompile(`<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<a[^>]*class="result__snippet"[^>]*>(.*?)</a>`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// parseSearchResults extracts search results from the DuckDuckGo HTML response.
// These patterns may need adjustment if DuckDuckGo changes their HTML structure.
func (d *DuckDuckGoProvider) parseSearchResults(html string, maxResults int) []Result {
	var results []Result

	for i, match := range ddgResultPattern.FindAllStringSubmatch(html, -1) {
		if maxResults > 0 && len(results) >= maxResults {
			break
		}

		resultHTML := match[1]
		titleMatch := ddgTitlePattern.FindStringSubmatch(resultHTML)
		if len(titleMatch) < 3 {
			continue
		}

		finalURL := d.extractFinalURL(titleMatch[1])
		if finalURL == "" {
			continue
		}

		snippet := ""
		if snippetMatch := ddgSnippetPattern.FindStringSubmatch(resultHTML); len(snippetMatch) >= 2 {
			snippet = cleanHTMLText(snippetMatch[1])
		}

		results = append(results, Result{
			URL:     finalURL,
			Title:   cleanHTMLText(titleMatch[2]),
			Snippet: snippet,
			Domain:  extractDomain(finalURL),
			Source:  "DuckDuckGo",
			Rank:    i + 1,
		})
	}

	return results
}

// extractFinalURL extracts the actual URL from DuckDuckGo's redirect URL.
// DuckDuckGo uses URLs like: /l/?uddg=https%3A//example.com/...&rut=...
func (d *DuckDuckGoProvider) extractFinalURL(redirectURL string) string {
	if strings.HasPrefix(redirectURL, "/l/?") {
		parsed, err := url.Parse(redirectURL)
		if err != nil {
			return ""
		}
		if uddg := parsed.Query().Get("uddg"); uddg != "" {
			decoded, err := url.QueryUnescape(uddg)
			if err != nil {
				return ""
			}
			return decoded
		}
	}

	if strings.HasPrefix(redirectURL, "http") {
		return redirectURL
	}
	return ""
}

// extractDomain extracts the domain name from a URL.
func extractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// cleanHTMLText removes HTML tags and decodes common HTML entities.
func cleanHTMLText(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")

	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
