package search

import (
	"context"
	"errors"
	"testing"

	"github.com/SuzumiyaAoba/ees-sub005/internal/cache"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

type fakeStore struct {
	records          []*types.EmbeddingRecord
	findByModelCalls int
}

func (f *fakeStore) Create(ctx context.Context, rec provider.CreateRecord) (*types.EmbeddingRecord, error) {
	return nil, nil
}

func (f *fakeStore) FindByURI(ctx context.Context, uri, modelName string) (*types.EmbeddingRecord, error) {
	return nil, nil
}

func (f *fakeStore) FindByID(ctx context.Context, id int64) (*types.EmbeddingRecord, error) {
	return nil, nil
}

func (f *fakeStore) FindAll(ctx context.Context, filter types.ListFilter) ([]*types.EmbeddingRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) FindByModel(ctx context.Context, modelName string) ([]*types.EmbeddingRecord, error) {
	f.findByModelCalls++
	var out []*types.EmbeddingRecord
	for _, rec := range f.records {
		if rec.ModelName == modelName {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) Update(ctx context.Context, id int64, upd provider.UpdateRecord) (*types.EmbeddingRecord, error) {
	return nil, types.ErrNotFound
}

func (f *fakeStore) Delete(ctx context.Context, id int64) error { return types.ErrNotFound }

func (f *fakeStore) DeleteAll(ctx context.Context) (int64, error) { return 0, nil }

type fakeEmbedder struct {
	vectors    map[string][]float64 // query text -> vector
	model      string
	embedCalls int
	err        error
}

func (f *fakeEmbedder) Name() string         { return "fake" }
func (f *fakeEmbedder) DefaultModel() string { return f.model }

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text, model string) ([]float64, error) {
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 0}, nil
}

func (f *fakeEmbedder) ListModels(ctx context.Context) ([]types.ModelDescriptor, error) {
	return nil, nil
}

func (f *fakeEmbedder) IsModelAvailable(ctx context.Context, model string) bool { return true }

func (f *fakeEmbedder) GetModelInfo(ctx context.Context, model string) (*types.ModelDescriptor, error) {
	return nil, nil
}

func (f *fakeEmbedder) Available(ctx context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                        { return nil }

func record(id int64, model string, vec []float64) *types.EmbeddingRecord {
	return &types.EmbeddingRecord{ID: id, URI: "rec", ModelName: model, Vector: vec}
}

func newTestEngine(store *fakeStore, embedder *fakeEmbedder, c *cache.Cache) *Engine {
	return New(Config{
		Store:    store,
		Embedder: embedder,
		Cache:    c,
		TTL:      cache.DefaultTTLConfig(),
	})
}

func TestSearchRanking(t *testing.T) {
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(1, "m", []float64{0, 1}),  // orthogonal to query
		record(2, "m", []float64{1, 0}),  // identical direction
		record(3, "m", []float64{1, 1}),  // in between
		record(4, "m", []float64{-1, 0}), // opposite
	}}
	embedder := &fakeEmbedder{model: "m", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(store, embedder, nil)

	result, err := engine.Search(context.Background(), &types.SearchRequest{
		Query: "q", ModelName: "m", Threshold: -1,
	})
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []int64{2, 3, 1, 4}
	if len(result.Results) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(result.Results), len(wantOrder))
	}
	for i, id := range wantOrder {
		if result.Results[i].Record.ID != id {
			t.Errorf("position %d: id = %d, want %d", i, result.Results[i].Record.ID, id)
		}
	}
	for i := 1; i < len(result.Results); i++ {
		if result.Results[i].Score > result.Results[i-1].Score {
			t.Errorf("scores not descending at position %d", i)
		}
	}
}

func TestSearchTieBreak(t *testing.T) {
	// Same vector twice: identical scores must fall back to ascending id
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(9, "m", []float64{1, 0}),
		record(3, "m", []float64{1, 0}),
	}}
	embedder := &fakeEmbedder{model: "m", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(store, embedder, nil)

	result, err := engine.Search(context.Background(), &types.SearchRequest{Query: "q", ModelName: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	if result.Results[0].Record.ID != 3 || result.Results[1].Record.ID != 9 {
		t.Errorf("tie not broken by ascending id: got %d, %d",
			result.Results[0].Record.ID, result.Results[1].Record.ID)
	}
}

func TestSearchThresholdAndLimit(t *testing.T) {
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(1, "m", []float64{1, 0}),
		record(2, "m", []float64{0.9, 0.1}),
		record(3, "m", []float64{0.5, 0.5}),
		record(4, "m", []float64{0, 1}),
	}}
	embedder := &fakeEmbedder{model: "m", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(store, embedder, nil)

	result, err := engine.Search(context.Background(), &types.SearchRequest{
		Query: "q", ModelName: "m", Threshold: 0.6, Limit: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Records 1, 2, 3 pass the threshold; limit trims to 2. TotalResults
	// still reports all matches.
	if result.TotalResults != 3 {
		t.Errorf("total = %d, want 3", result.TotalResults)
	}
	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	if result.Results[0].Record.ID != 1 || result.Results[1].Record.ID != 2 {
		t.Errorf("unexpected top results: %d, %d",
			result.Results[0].Record.ID, result.Results[1].Record.ID)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(1, "m", []float64{1, 0}),
		record(2, "m", []float64{1, 0, 0}), // wrong dimensions
		record(3, "m", []float64{0, 1}),
	}}
	embedder := &fakeEmbedder{model: "m", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(store, embedder, nil)

	_, err := engine.Search(context.Background(), &types.SearchRequest{Query: "q", ModelName: "m"})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !types.IsDimensionMismatch(err) {
		t.Fatalf("expected DimensionMismatchError, got %T", err)
	}

	var dm *types.DimensionMismatchError
	errors.As(err, &dm)
	if dm.RecordID != 2 {
		t.Errorf("offending record = %d, want 2", dm.RecordID)
	}
	if dm.Expected != 2 || dm.Actual != 3 {
		t.Errorf("dimensions = %d/%d, want 2/3", dm.Expected, dm.Actual)
	}
}

func TestSearchDefaults(t *testing.T) {
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(1, "default-model", []float64{1, 0}),
	}}
	embedder := &fakeEmbedder{model: "default-model", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(store, embedder, nil)

	result, err := engine.Search(context.Background(), &types.SearchRequest{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if result.ModelName != "default-model" {
		t.Errorf("model = %q, want provider default", result.ModelName)
	}
	if len(result.Results) != 1 {
		t.Errorf("got %d results, want 1", len(result.Results))
	}
}

func TestSearchInvalidRequests(t *testing.T) {
	engine := newTestEngine(&fakeStore{}, &fakeEmbedder{model: "m"}, nil)

	_, err := engine.Search(context.Background(), &types.SearchRequest{
		Query: "q", Metric: types.Metric("manhattan"),
	})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad metric, got %v", err)
	}

	_, err = engine.Search(context.Background(), &types.SearchRequest{})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty query, got %v", err)
	}
}

func TestSearchQueryVectorBypassesEmbedder(t *testing.T) {
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(1, "m", []float64{1, 0}),
	}}
	embedder := &fakeEmbedder{model: "m"}
	engine := newTestEngine(store, embedder, nil)

	result, err := engine.Search(context.Background(), &types.SearchRequest{
		QueryVector: []float64{1, 0}, ModelName: "m",
	})
	if err != nil {
		t.Fatal(err)
	}
	if embedder.embedCalls != 0 {
		t.Errorf("embedder called %d times for vector query, want 0", embedder.embedCalls)
	}
	if len(result.Results) != 1 {
		t.Errorf("got %d results, want 1", len(result.Results))
	}
}

func TestSearchEmbedderError(t *testing.T) {
	providerErr := types.NewConnectionError("fake", "m", errors.New("dial refused"))
	embedder := &fakeEmbedder{model: "m", err: providerErr}
	engine := newTestEngine(&fakeStore{}, embedder, nil)

	_, err := engine.Search(context.Background(), &types.SearchRequest{Query: "q", ModelName: "m"})
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
	if !types.IsProviderErrorKind(err, types.ProviderErrConnection) {
		t.Errorf("provider error kind lost through search: %v", err)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	embedder := &fakeEmbedder{model: "m", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(&fakeStore{}, embedder, nil)

	result, err := engine.Search(context.Background(), &types.SearchRequest{Query: "q", ModelName: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalResults != 0 || len(result.Results) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestSearchCacheHit(t *testing.T) {
	store := &fakeStore{records: []*types.EmbeddingRecord{
		record(1, "m", []float64{1, 0}),
	}}
	embedder := &fakeEmbedder{model: "m", vectors: map[string][]float64{"q": {1, 0}}}
	engine := newTestEngine(store, embedder, cache.New(10))

	req := &types.SearchRequest{Query: "q", ModelName: "m", Limit: 5}
	if _, err := engine.Search(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Search(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if store.findByModelCalls != 1 {
		t.Errorf("store scanned %d times, want 1 (second search cached)", store.findByModelCalls)
	}
	if embedder.embedCalls != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.embedCalls)
	}

	// A different threshold is a different result set, not a cache hit
	other := &types.SearchRequest{Query: "q", ModelName: "m", Limit: 5, Threshold: 0.9}
	if _, err := engine.Search(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if store.findByModelCalls != 2 {
		t.Errorf("store scanned %d times, want 2 after threshold change", store.findByModelCalls)
	}
}
