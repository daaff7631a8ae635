package search

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProviderFactory(t *testing.T) {
	factory := NewProviderFactory()

	tests := []struct {
		name         string
		providerType ProviderType
		config       map[string]string
		wantErr      error
	}{
		{"duckduckgo", ProviderTypeDuckDuckGo, nil, nil},
		{"mock", ProviderTypeMock, nil, nil},
		{"google ok", ProviderTypeGoogle, map[string]string{"api_key": "k", "search_id": "s"}, nil},
		{"google missing key", ProviderTypeGoogle, map[string]string{"search_id": "s"}, ErrMissingAPIKey},
		{"google missing id", ProviderTypeGoogle, map[string]string{"api_key": "k"}, ErrMissingSearchID},
		{"unknown", ProviderType("bing"), nil, ErrUnsupportedProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.CreateProvider(tt.providerType, tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateProvider failed: %v", err)
			}
			if p == nil {
				t.Fatal("provider should not be nil")
			}
		})
	}
}

func TestMockProviderLimitsResults(t *testing.T) {
	p := NewMockProvider()
	results, err := p.Search(context.Background(), "anything", Config{MaxResults: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestResultDated(t *testing.T) {
	dated := Result{PublishedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	if !dated.Dated() {
		t.Error("result with a date should report Dated()")
	}
	if (Result{}).Dated() {
		t.Error("result without a date should not report Dated()")
	}
}

func TestDuckDuckGoExtractFinalURL(t *testing.T) {
	d := NewDuckDuckGoProvider()

	tests := []struct {
		input    string
		expected string
	}{
		{"/l/?uddg=https%3A%2F%2Fexample.com%2Fstory&rut=abc", "https://example.com/story"},
		{"https://direct.example.com/page", "https://direct.example.com/page"},
		{"/relative/path", ""},
	}
	for _, tt := range tests {
		if got := d.extractFinalURL(tt.input); got != tt.expected {
			t.Errorf("extractFinalURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDuckDuckGoParseSearchResults(t *testing.T) {
	html := `<div class="result results_links"><a class="result__a" href="/l/?uddg=https%3A%2F%2Fnews.example.com%2Fa">First &amp; Best</a><a class="result__snippet">A <b>snippet</b> here</a></div>` +
		`<div class="result results_links"><a class="result__a" href="https://other.example.com/b">Second</a></div>`

	d := NewDuckDuckGoProvider()
	results := d.parseSearchResults(html, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].URL != "https://news.example.com/a" {
		t.Errorf("unexpected URL: %s", results[0].URL)
	}
	if results[0].Title != "First & Best" {
		t.Errorf("entities should be decoded, got %q", results[0].Title)
	}
	if results[0].Snippet != "A snippet here" {
		t.Errorf("tags should be stripped from snippet, got %q", results[0].Snippet)
	}
	if results[0].Domain != "news.example.com" {
		t.Errorf("unexpected domain: %s", results[0].Domain)
	}
}

func TestPublishedFromMetatags(t *testing.T) {
	tags := []map[string]string{
		{"og:title": "ignored"},
		{"article:published_time": "2024-06-01T12:00:00Z"},
	}
	got := publishedFromMetatags(tags)
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("publishedFromMetatags = %v, want %v", got, want)
	}

	if !publishedFromMetatags(nil).IsZero() {
		t.Error("no metatags should yield zero time")
	}
	if !publishedFromMetatags([]map[string]string{{"date": "garbage"}}).IsZero() {
		t.Error("unparseable date should yield zero time")
	}
}
