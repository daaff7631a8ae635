package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserExtractor renders pages in headless Chrome before extracting text.
// The browser is launched lazily on first use and shared across calls; pages
// are created and closed per call.
type BrowserExtractor struct {
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserExtractor creates a headless-browser text extractor.
func NewBrowserExtractor() *BrowserExtractor {
	return &BrowserExtractor{}
}

// connect launches Chrome on first use.
func (e *BrowserExtractor) connect() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	e.lnch = l
	e.browser = b
	return b, nil
}

// ExtractText renders the URL in a fresh page and extracts its main text.
// The caller's context bounds the whole render; the page is closed on return.
func (e *BrowserExtractor) ExtractText(ctx context.Context, url string) (string, error) {
	browser, err := e.connect()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("failed to load %s: %w", url, err)
	}
	// Give late scripts a moment to settle without blocking past the deadline.
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page HTML from %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered HTML from %s: %w", url, err)
	}
	return ExtractFromDocument(doc), nil
}

// Close shuts down the shared browser.
func (e *BrowserExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.browser = nil
	if e.lnch != nil {
		e.lnch.Cleanup()
		e.lnch = nil
	}
	return err
}
