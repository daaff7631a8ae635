package search

import (
	"context"
	"time"
)

// MockProvider implements Provider for testing purposes.
type MockProvider struct {
	name    string
	results []Result
	err     error
}

// NewMockProvider creates a new mock search provider with canned results.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name: "Mock",
		results: []Result{
			{
				URL:         "https://example.com/article1",
				Title:       "Example Article 1",
				Snippet:     "This is a mock search result for testing purposes.",
				Domain:      "example.com",
				PublishedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Source:      "Mock",
				Rank:        1,
			},
			{
				URL:     "https://test.org/article2",
				Title:   "Test Article 2",
				Snippet: "Another mock search result, this one without a date.",
				Domain:  "test.org",
				Source:  "Mock",
				Rank:    2,
			},
		},
	}
}

// SetResults replaces the canned result set.
func (m *MockProvider) SetResults(results []Result) {
	m.results = results
}

// SetError makes every Search call fail with err.
func (m *MockProvider) SetError(err error) {
	m.err = err
}

// GetName returns the name of this provider.
func (m *MockProvider) GetName() string {
	return m.name
}

// Search returns the canned results, truncated to config.MaxResults.
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if m.err != nil {
		return nil, m.err
	}

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > len(m.results) {
		maxResults = len(m.results)
	}
	return m.results[:maxResults], nil
}
