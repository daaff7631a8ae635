package core

import (
	"fmt"
	"math"
	"time"
)

// EmbeddingDim is the required dimension for all fact embeddings.
const EmbeddingDim = 384

// IngestionSource identifies how an article entered the pipeline.
type IngestionSource string

const (
	SourceRSS    IngestionSource = "RSS"
	SourceEvents IngestionSource = "EVENTS"
)

// QueueStatus is the processing state of a queued article.
type QueueStatus string

const (
	StatusPending QueueStatus = "PENDING"
	StatusScraped QueueStatus = "SCRAPED"
	StatusFailed  QueueStatus = "FAILED"
)

// Article represents a news item ingested into the pipeline.
type Article struct {
	ID            int64           `json:"id"`             // Stable integer identifier
	URL           string          `json:"url"`            // Unique source URL
	Title         string          `json:"title"`          // Article title (may be empty for events articles)
	Publisher     string          `json:"publisher"`      // Publishing outlet
	Source        IngestionSource `json:"source"`         // RSS or EVENTS
	PublishedDate *time.Time      `json:"published_date"` // Publication date, if known
	RawText       *string         `json:"raw_text"`       // Hydrated body text
	ProcessedAt   *time.Time      `json:"processed_at"`   // Set once the digester has consumed the article
	IsReference   bool            `json:"is_reference"`   // True when introduced as an external provenance citation
}

// QueueEntry tracks hydration state for one article.
type QueueEntry struct {
	ID        int64       `json:"id"`
	ArticleID int64       `json:"article_id"`
	Status    QueueStatus `json:"status"`
	Attempts  int         `json:"attempts"`
}

// Fact is an atomic (subject, predicate, object) assertion extracted from an article.
type Fact struct {
	ID           int64      `json:"id"`
	ArticleID    int64      `json:"article_id"`    // Article the fact was extracted from
	Subject      string     `json:"subject"`
	Predicate    string     `json:"predicate"`
	Object       string     `json:"object"`
	Confidence   float64    `json:"confidence"`    // Extractor confidence in [0,1]
	Embedding    []float64  `json:"embedding"`     // 384-dim embedding of the statement
	CreatedAt    time.Time  `json:"created_at"`
	CheckedAt    *time.Time `json:"checked_at"`    // Set once the provenance hunter has ruled
	IsOriginal   *bool      `json:"is_original"`   // Non-nil iff CheckedAt is set
	ProvenanceID *int64     `json:"provenance_id"` // Earlier fact this one restates, when IsOriginal=false
}

// Statement is the canonical string form of a fact, used for embedding and display.
func (f Fact) Statement() string {
	return fmt.Sprintf("%s %s %s", f.Subject, f.Predicate, f.Object)
}

// FactCandidate is a raw extractor triple before embedding and persistence.
type FactCandidate struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// Statement builds the canonical string form of the candidate.
func (c FactCandidate) Statement() string {
	return fmt.Sprintf("%s %s %s", c.Subject, c.Predicate, c.Object)
}

// Feed represents one configured RSS/Atom feed source.
type Feed struct {
	URL          string    `json:"url"`           // Feed URL
	Publisher    string    `json:"publisher"`     // Outlet name recorded on ingested articles
	LastModified string    `json:"last_modified"` // Last-Modified header from the previous fetch
	ETag         string    `json:"etag"`          // ETag header from the previous fetch
	LastFetched  time.Time `json:"last_fetched"`
}

// FeedItem represents an entry discovered in an RSS/Atom feed.
type FeedItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	GUID      string    `json:"guid"`
	Published time.Time `json:"published"`
}

// StageSummary is the structured result a pipeline stage returns to the orchestrator.
type StageSummary struct {
	Stage     string        `json:"stage"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 when either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CosineDistance is 1 - CosineSimilarity.
func CosineDistance(a, b []float64) float64 {
	return 1 - CosineSimilarity(a, b)
}
