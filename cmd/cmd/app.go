package cmd

import (
	"context"
	"fmt"

	"factweave/internal/config"
	"factweave/internal/fetch"
	"factweave/internal/graph"
	"factweave/internal/llm"
	"factweave/internal/search"
	"factweave/internal/store"
)

// openStore connects to the fact store with the configured pool bounds.
func openStore() (*store.Store, error) {
	cfg := config.Get().Database
	return store.Open(cfg.DSN, store.Options{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		QueryTimeout: cfg.QueryTimeout,
	})
}

// openGraph connects to the graph store and asserts its constraints.
func openGraph(ctx context.Context) (*graph.Store, error) {
	g, err := graph.New(ctx, config.Get().Graph)
	if err != nil {
		return nil, err
	}
	if err := g.EnsureConstraints(ctx); err != nil {
		_ = g.Close(ctx)
		return nil, err
	}
	return g, nil
}

// newLLM builds the Gemini client with the configured deadlines.
func newLLM() (*llm.Client, error) {
	cfg := config.Get().AI.Gemini
	return llm.NewClient(cfg.Model, llm.WithTimeouts(cfg.ExtractTimeout, cfg.EmbedTimeout))
}

// newSearchProvider builds the configured provenance search provider.
func newSearchProvider() (search.Provider, error) {
	cfg := config.Get().Search
	factory := search.NewProviderFactory()

	providerType := search.ProviderType(cfg.DefaultProvider)
	if providerType == "" {
		providerType = search.ProviderTypeDuckDuckGo
	}
	return factory.CreateProvider(providerType, map[string]string{
		"api_key":   cfg.Providers.Google.APIKey,
		"search_id": cfg.Providers.Google.SearchID,
	})
}

// newHydrationExtractor picks the page extractor for the hydrator: headless
// browser by default, plain HTTP when requested.
func newHydrationExtractor(plainHTTP bool) (fetch.Extractor, func() error) {
	if plainHTTP {
		cfg := config.Get()
		return fetch.NewHTTPExtractor(cfg.Pipeline.HydrateTimeout, cfg.Ingest.UserAgent), func() error { return nil }
	}
	browser := fetch.NewBrowserExtractor()
	return browser, browser.Close
}

// newFallbackExtractor is the digester's re-fetch path for articles that
// missed hydration.
func newFallbackExtractor() fetch.Extractor {
	cfg := config.Get()
	return fetch.NewHTTPExtractor(cfg.Pipeline.FetchTimeout, cfg.Ingest.UserAgent)
}

// printSummary reports a one-shot stage result on stdout.
func printSummary(stage string, processed, skipped, failed int) {
	fmt.Printf("%s: processed=%d skipped=%d failed=%d\n", stage, processed, skipped, failed)
}
