package provenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/search"
	"factweave/internal/store"
)

// verdict records one MarkFactChecked call.
type verdict struct {
	isOriginal   bool
	provenanceID *int64
}

type fakeHuntStore struct {
	unchecked []store.UncheckedFact
	neighbors map[int64]*store.Neighbor // keyed by fact id

	verdicts   map[int64]verdict
	deferred   map[int64]int
	references []string
}

func newFakeHuntStore(facts ...store.UncheckedFact) *fakeHuntStore {
	return &fakeHuntStore{
		unchecked: facts,
		neighbors: make(map[int64]*store.Neighbor),
		verdicts:  make(map[int64]verdict),
		deferred:  make(map[int64]int),
	}
}

func (f *fakeHuntStore) UncheckedFacts(ctx context.Context, limit int) ([]store.UncheckedFact, error) {
	if limit > len(f.unchecked) {
		limit = len(f.unchecked)
	}
	return f.unchecked[:limit], nil
}

func (f *fakeHuntStore) EarliestNeighbor(ctx context.Context, embedding []float64, tau float64, excludeID int64, before time.Time) (*store.Neighbor, error) {
	return f.neighbors[excludeID], nil
}

func (f *fakeHuntStore) MarkFactChecked(ctx context.Context, factID int64, isOriginal bool, provenanceID *int64) error {
	f.verdicts[factID] = verdict{isOriginal: isOriginal, provenanceID: provenanceID}
	return nil
}

func (f *fakeHuntStore) MarkHuntDeferred(ctx context.Context, factID int64) error {
	f.deferred[factID]++
	return nil
}

func (f *fakeHuntStore) UpsertReferenceArticle(ctx context.Context, url string, publishedDate *time.Time) (int64, error) {
	f.references = append(f.references, url)
	return int64(1000 + len(f.references)), nil
}

func embedding() []float64 {
	v := make([]float64, core.EmbeddingDim)
	v[0] = 1
	return v
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func boolPtr(b bool) *bool { return &b }

func idPtr(id int64) *int64 { return &id }

func unchecked(id int64, articleDate *time.Time) store.UncheckedFact {
	return store.UncheckedFact{
		Fact: core.Fact{
			ID:        id,
			ArticleID: id * 10,
			Subject:   "acme",
			Predicate: "announced",
			Object:    "a merger",
			Embedding: embedding(),
			CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		ArticleDate: articleDate,
	}
}

func pipelineDefaults() config.Pipeline {
	return config.Pipeline{BatchProvenance: 25, TauProvenance: 0.15, MaxAttempts: 3}
}

func TestHuntOnceInternalProvenanceWins(t *testing.T) {
	fs := newFakeHuntStore(unchecked(2, datePtr(2024, 6, 1)))
	fs.neighbors[2] = &store.Neighbor{FactID: 1, Distance: 0.1, IsOriginal: boolPtr(true)}

	searcher := search.NewMockProvider()
	searcher.SetError(errors.New("must not be called")) // internal match decides first

	h := New(fs, searcher, pipelineDefaults())
	summary, err := h.HuntOnce(context.Background())
	if err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected 1 checked fact, got %+v", summary)
	}

	v, ok := fs.verdicts[2]
	if !ok {
		t.Fatal("fact 2 was not stamped")
	}
	if v.isOriginal {
		t.Error("fact with an older internal neighbor must not be original")
	}
	if v.provenanceID == nil || *v.provenanceID != 1 {
		t.Errorf("provenance_id should point at fact 1, got %v", v.provenanceID)
	}
}

func TestHuntOnceExternalEvidenceDemotes(t *testing.T) {
	fs := newFakeHuntStore(unchecked(5, datePtr(2024, 6, 1)))

	searcher := search.NewMockProvider()
	searcher.SetResults([]search.Result{
		{URL: "https://undated.example/x"}, // no date: never counts as evidence
		{URL: "https://wire.example/earlier", PublishedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	})

	h := New(fs, searcher, pipelineDefaults())
	if _, err := h.HuntOnce(context.Background()); err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}

	v := fs.verdicts[5]
	if v.isOriginal {
		t.Error("externally predated fact must not be original")
	}
	if v.provenanceID != nil {
		t.Errorf("external provenance keeps provenance_id NULL, got %v", *v.provenanceID)
	}
	if len(fs.references) != 1 || fs.references[0] != "https://wire.example/earlier" {
		t.Errorf("evidence URL should be recorded as a reference article, got %v", fs.references)
	}
}

func TestHuntOnceLaterEvidenceDoesNotDemote(t *testing.T) {
	fs := newFakeHuntStore(unchecked(7, datePtr(2024, 6, 1)))

	searcher := search.NewMockProvider()
	searcher.SetResults([]search.Result{
		{URL: "https://late.example", PublishedAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
	})

	h := New(fs, searcher, pipelineDefaults())
	if _, err := h.HuntOnce(context.Background()); err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}

	v, ok := fs.verdicts[7]
	if !ok {
		t.Fatal("fact should be stamped")
	}
	if !v.isOriginal {
		t.Error("fact predating all evidence must be original")
	}
	if len(fs.references) != 0 {
		t.Error("no reference article should be created for later evidence")
	}
}

func TestHuntOnceSearchFailureDefersFact(t *testing.T) {
	fs := newFakeHuntStore(unchecked(9, datePtr(2024, 6, 1)))

	searcher := search.NewMockProvider()
	searcher.SetError(errors.New("search quota exhausted"))

	h := New(fs, searcher, pipelineDefaults())
	summary, err := h.HuntOnce(context.Background())
	if err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 0 {
		t.Fatalf("fact should be deferred, got %+v", summary)
	}
	if _, stamped := fs.verdicts[9]; stamped {
		t.Error("fact must stay unstamped when external search fails")
	}
	if fs.deferred[9] != 1 {
		t.Errorf("failed search should count one attempt, got %d", fs.deferred[9])
	}
}

func TestHuntOnceSearchFailureCapAcceptsFactAsOriginal(t *testing.T) {
	u := unchecked(13, datePtr(2024, 6, 1))
	u.Attempts = 2 // one attempt left
	fs := newFakeHuntStore(u)

	searcher := search.NewMockProvider()
	searcher.SetError(errors.New("search quota exhausted"))

	h := New(fs, searcher, pipelineDefaults())
	summary, err := h.HuntOnce(context.Background())
	if err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("fact at the attempt cap should be stamped, got %+v", summary)
	}

	v, ok := fs.verdicts[13]
	if !ok {
		t.Fatal("fact at the attempt cap must receive a verdict")
	}
	if !v.isOriginal || v.provenanceID != nil {
		t.Errorf("exhausted verification should accept the fact as original, got %+v", v)
	}
	if fs.deferred[13] != 0 {
		t.Errorf("no further attempt should be counted at the cap, got %d", fs.deferred[13])
	}
}

func TestHuntOnceDemotedNeighborResolvesToRoot(t *testing.T) {
	fs := newFakeHuntStore(unchecked(9, datePtr(2024, 6, 1)))
	fs.neighbors[9] = &store.Neighbor{
		FactID:       7,
		Distance:     0.1,
		IsOriginal:   boolPtr(false),
		ProvenanceID: idPtr(3),
	}

	searcher := search.NewMockProvider()
	searcher.SetError(errors.New("must not be called"))

	h := New(fs, searcher, pipelineDefaults())
	if _, err := h.HuntOnce(context.Background()); err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}

	v, ok := fs.verdicts[9]
	if !ok {
		t.Fatal("fact 9 was not stamped")
	}
	if v.isOriginal {
		t.Error("fact with an older equivalent must not be original")
	}
	if v.provenanceID == nil || *v.provenanceID != 3 {
		t.Errorf("provenance_id must point at the original root 3, not the demoted neighbor, got %v", v.provenanceID)
	}
}

func TestHuntOnceUncheckedNeighborDefers(t *testing.T) {
	fs := newFakeHuntStore(unchecked(15, datePtr(2024, 6, 1)))
	fs.neighbors[15] = &store.Neighbor{FactID: 4, Distance: 0.1} // verdict pending

	searcher := search.NewMockProvider()
	searcher.SetError(errors.New("must not be called"))

	h := New(fs, searcher, pipelineDefaults())
	summary, err := h.HuntOnce(context.Background())
	if err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 0 {
		t.Fatalf("fact should wait for its neighbor's verdict, got %+v", summary)
	}
	if _, stamped := fs.verdicts[15]; stamped {
		t.Error("fact must not be stamped against an unchecked neighbor")
	}
}

func TestHuntOnceExternallyDemotedNeighborFallsToSearch(t *testing.T) {
	fs := newFakeHuntStore(unchecked(17, datePtr(2024, 6, 1)))
	fs.neighbors[17] = &store.Neighbor{FactID: 7, Distance: 0.1, IsOriginal: boolPtr(false)}

	searcher := search.NewMockProvider()
	searcher.SetResults([]search.Result{
		{URL: "https://wire.example/earlier", PublishedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	})

	h := New(fs, searcher, pipelineDefaults())
	if _, err := h.HuntOnce(context.Background()); err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}

	v, ok := fs.verdicts[17]
	if !ok {
		t.Fatal("fact 17 was not stamped")
	}
	if v.isOriginal {
		t.Error("externally predated fact must not be original")
	}
	if v.provenanceID != nil {
		t.Errorf("a neighbor without an internal root must not become a provenance target, got %v", *v.provenanceID)
	}
	if len(fs.references) != 1 {
		t.Errorf("evidence URL should be recorded as a reference article, got %v", fs.references)
	}
}

func TestHuntOnceEvidenceOnSameDateDemotes(t *testing.T) {
	date := datePtr(2024, 6, 1)
	fs := newFakeHuntStore(unchecked(11, date))

	searcher := search.NewMockProvider()
	searcher.SetResults([]search.Result{
		{URL: "https://same-day.example", PublishedAt: *date},
	})

	h := New(fs, searcher, pipelineDefaults())
	if _, err := h.HuntOnce(context.Background()); err != nil {
		t.Fatalf("HuntOnce failed: %v", err)
	}
	if v := fs.verdicts[11]; v.isOriginal {
		t.Error("evidence published the same day counts as on-or-before")
	}
}
