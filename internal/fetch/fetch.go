// Package fetch extracts main article text from web pages. Two extractors
// share one contract: a plain HTTP fetcher for well-behaved pages and a
// headless-browser fetcher for pages that require JavaScript rendering.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Extractor obtains the main text of the page at a URL.
type Extractor interface {
	// ExtractText fetches the URL and returns the main article text.
	// An empty result with a nil error means the page had no usable content.
	ExtractText(ctx context.Context, url string) (string, error)
}

// mainContentSelectors are tried in order before falling back to body text.
var mainContentSelectors = []string{
	"article", "main", ".main", "#main", ".content", "#content", ".post-body", ".entry-content",
}

// HTTPExtractor fetches pages over plain HTTP and parses them with goquery.
type HTTPExtractor struct {
	client    *http.Client
	userAgent string
}

// NewHTTPExtractor creates an HTTP-based text extractor.
func NewHTTPExtractor(timeout time.Duration, userAgent string) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "Factweave/1.0"
	}
	return &HTTPExtractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// ExtractText fetches the URL and extracts its main text.
func (e *HTTPExtractor) ExtractText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status code %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}
	return ExtractFromDocument(doc), nil
}

// ExtractFromDocument pulls the main text out of a parsed HTML document.
// Non-content elements are stripped, then common main-content selectors are
// tried before falling back to the whole body.
func ExtractFromDocument(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	var text string
	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text += s.Text() + " "
		})
		if strings.TrimSpace(text) != "" {
			break
		}
	}

	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}

	// Collapse runs of whitespace into single spaces.
	return strings.Join(strings.Fields(text), " ")
}
