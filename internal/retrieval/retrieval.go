// Package retrieval answers natural-language queries against the published
// knowledge graph using hybrid keyword and vector scoring.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/graph"
	"factweave/internal/logger"
)

// MaxQueryLength bounds the accepted query, matching the embedder input limit.
const MaxQueryLength = 512

// ErrInvalidQuery marks request-scoped validation failures.
var ErrInvalidQuery = errors.New("invalid query")

// LLM is the language-model surface the engine needs.
type LLM interface {
	ExpandQuery(ctx context.Context, query string, n int) ([]string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// GraphSearcher executes ranked fact queries against the graph store.
type GraphSearcher interface {
	Search(ctx context.Context, p graph.SearchParams) ([]graph.ScoredFact, error)
}

// Answer is one ranked retrieval response.
type Answer struct {
	Query    string             `json:"query"`
	Strategy graph.Strategy     `json:"strategy"`
	Results  []graph.ScoredFact `json:"results"`
}

// Engine runs query expansion, embedding and graph search per request.
type Engine struct {
	llm   LLM
	graph GraphSearcher
	cfg   config.Retrieval
}

// New creates a retrieval engine.
func New(llm LLM, gs GraphSearcher, cfg config.Retrieval) *Engine {
	return &Engine{llm: llm, graph: gs, cfg: cfg}
}

// Answer resolves one user query. The variant expansion and the embedding
// run concurrently and are both awaited regardless of individual failure;
// the strategy degrades to keyword-only when no embedding is available.
func (e *Engine) Answer(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, MaxQueryLength)
	}

	var (
		wg        sync.WaitGroup
		variants  []string
		expandErr error
		embedding []float64
		embedErr  error
	)

	n := e.cfg.ExpandVariants
	if n <= 0 {
		n = 3
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		variants, expandErr = e.llm.ExpandQuery(ctx, query, n)
	}()
	go func() {
		defer wg.Done()
		embedding, embedErr = e.llm.GenerateEmbedding(ctx, query)
	}()
	wg.Wait()

	if expandErr != nil {
		// The raw query still serves as the single keyword variant.
		logger.Warn("query expansion failed", "error", expandErr)
		variants = nil
	}
	variants = append([]string{query}, variants...)

	if embedErr != nil {
		logger.Warn("query embedding failed, using keyword-only strategy", "error", embedErr)
		embedding = nil
	}

	params := graph.SearchParams{
		Strategy:      chooseStrategy(embedding),
		Variants:      variants,
		Embedding:     embedding,
		KeywordWeight: e.cfg.KeywordWeight,
		VectorWeight:  e.cfg.VectorWeight,
		Limit:         e.cfg.MaxResults,
	}
	if params.Limit <= 0 {
		params.Limit = 15
	}

	results, err := e.graph.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Debug("query answered",
		"strategy", string(params.Strategy),
		"variants", len(params.Variants),
		"results", len(results))
	return &Answer{Query: query, Strategy: params.Strategy, Results: results}, nil
}

// chooseStrategy picks hybrid for a well-formed embedding, vector-only for
// an off-dimension one, and keyword-only when embedding failed entirely.
func chooseStrategy(embedding []float64) graph.Strategy {
	switch {
	case len(embedding) == core.EmbeddingDim:
		return graph.StrategyHybrid
	case len(embedding) > 0:
		return graph.StrategyVectorOnly
	default:
		return graph.StrategyKeywordOnly
	}
}
