package search

import "errors"

var (
	// ErrMissingAPIKey is returned when a provider requires an API key that was not supplied.
	ErrMissingAPIKey = errors.New("search provider requires an API key")

	// ErrMissingSearchID is returned when Google Custom Search is configured without a search engine ID.
	ErrMissingSearchID = errors.New("google custom search requires a search engine ID")

	// ErrUnsupportedProvider is returned for unknown provider types.
	ErrUnsupportedProvider = errors.New("unsupported search provider")
)
