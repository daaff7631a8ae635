package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"factweave/internal/core"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model for fact extraction and query expansion.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default model for generating embeddings.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// EmbeddingDimensions is the output dimension for embeddings (Matryoshka truncation).
	EmbeddingDimensions = int32(core.EmbeddingDim)

	// maxExtractInput caps the article text sent to the extractor.
	maxExtractInput = 40 * 1024
	// maxEmbedInput caps the statement text sent to the embedder.
	maxEmbedInput = 512
	// maxCandidates caps the extractor's output list.
	maxCandidates = 50
	// maxFieldLen caps each triple field.
	maxFieldLen = 256

	extractFactsPromptTemplate = `Extract atomic factual assertions from the following news article text.

Return ONLY a JSON object in this exact shape, with no commentary:
{"facts":[{"subject":"...","predicate":"...","object":"...","confidence":0.0}]}

Rules:
- Each fact is one atomic (subject, predicate, object) assertion stated by the article.
- subject, predicate, and object are short phrases; no full sentences.
- confidence is your certainty in [0,1] that the article asserts this fact.
- Skip opinions, speculation, and questions.

Article text:
---
%s
---`

	expandQueryPromptTemplate = `Rewrite the following search query as %d alternative phrasings that preserve its meaning.
Return one phrasing per line with no numbering, bullets, or commentary.

Query: %s`
)

// Client wraps the Gemini API for fact extraction, embeddings, and query expansion.
type Client struct {
	apiKey         string
	modelName      string
	embeddingModel string
	gClient        *genai.Client
	extractTimeout time.Duration
	embedTimeout   time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeouts sets the per-call deadlines for extraction and embedding.
func WithTimeouts(extract, embed time.Duration) Option {
	return func(c *Client) {
		if extract > 0 {
			c.extractTimeout = extract
		}
		if embed > 0 {
			c.embedTimeout = embed
		}
	}
}

// NewClient creates a new LLM client.
// The API key is taken from GEMINI_API_KEY or the ai.gemini.api_key config key.
func NewClient(modelName string, opts ...Option) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("ai.gemini.api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or ai.gemini.api_key")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}
	embeddingModel := viper.GetString("ai.gemini.embedding_model")
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	gClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		apiKey:         apiKey,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		gClient:        gClient,
		extractTimeout: 30 * time.Second,
		embedTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// generateContent wraps the SDK's GenerateContent call.
func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// ExtractFacts asks the model for atomic (subject, predicate, object)
// assertions in the given text. Malformed output is treated as an empty list;
// individual malformed entries are dropped, never the whole batch.
func (c *Client) ExtractFacts(ctx context.Context, text string) ([]core.FactCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(text) > maxExtractInput {
		text = text[:maxExtractInput]
	}

	ctx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	raw, err := c.generateContent(ctx, fmt.Sprintf(extractFactsPromptTemplate, text))
	if err != nil {
		return nil, err
	}
	return parseFactCandidates(raw), nil
}

// GenerateEmbedding generates a 384-dimension embedding for the given text.
// A response with any other dimension is a contract violation and an error.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	if len(text) > maxEmbedInput {
		text = text[:maxEmbedInput]
	}

	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
	}}
	dims := EmbeddingDimensions
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	if len(values) != core.EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(values), core.EmbeddingDim)
	}
	embedding := make([]float64, len(values))
	for i, val := range values {
		embedding[i] = float64(val)
	}
	return embedding, nil
}

// ExpandQuery asks the model for up to n alternative phrasings of the query.
func (c *Client) ExpandQuery(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	raw, err := c.generateContent(ctx, fmt.Sprintf(expandQueryPromptTemplate, n, query))
	if err != nil {
		return nil, err
	}
	return parseVariants(raw, n), nil
}

// factsPayload mirrors the extractor's JSON contract.
type factsPayload struct {
	Facts []struct {
		Subject    string          `json:"subject"`
		Predicate  string          `json:"predicate"`
		Object     string          `json:"object"`
		Confidence json.RawMessage `json:"confidence"`
	} `json:"facts"`
}

// parseFactCandidates validates untrusted extractor JSON. Each field is
// clamped, confidence is coerced into [0,1], and entries with an empty
// subject, predicate, or object are dropped.
func parseFactCandidates(raw string) []core.FactCandidate {
	raw = stripCodeFence(raw)

	var payload factsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}

	var out []core.FactCandidate
	for _, f := range payload.Facts {
		if len(out) >= maxCandidates {
			break
		}
		subject := clampField(f.Subject)
		predicate := clampField(f.Predicate)
		object := clampField(f.Object)
		if subject == "" || predicate == "" || object == "" {
			continue
		}
		out = append(out, core.FactCandidate{
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			Confidence: coerceConfidence(f.Confidence),
		})
	}
	return out
}

// parseVariants splits model output into at most n non-empty lines.
func parseVariants(raw string, n int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= n {
			break
		}
	}
	return out
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clampField(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLen {
		s = s[:maxFieldLen]
	}
	return s
}

// coerceConfidence accepts a JSON number or numeric string and clamps it to [0,1].
// Anything else decodes to 0, which the digester's confidence gate rejects.
func coerceConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &v); err != nil {
			return 0
		}
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
