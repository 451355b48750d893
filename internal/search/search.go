// Package search implements linear-scan vector similarity search.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/SuzumiyaAoba/ees-sub005/internal/cache"
	"github.com/SuzumiyaAoba/ees-sub005/internal/metrics"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Engine scores stored vectors against a query vector. All records for the
// requested model are scanned; there is no index.
type Engine struct {
	store    provider.RecordStore
	embedder provider.EmbeddingProvider
	cache    *cache.Cache // may be nil
	ttls     cache.TTLConfig
}

// Config contains search engine configuration.
type Config struct {
	Store    provider.RecordStore
	Embedder provider.EmbeddingProvider
	Cache    *cache.Cache // optional
	TTL      cache.TTLConfig
}

// New creates a new search engine.
func New(cfg Config) *Engine {
	return &Engine{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		cache:    cfg.Cache,
		ttls:     cfg.TTL,
	}
}

// Search runs a similarity search. The request's query text is embedded via
// the provider unless QueryVector is already set. Results carry scores on a
// higher-is-more-similar scale, sorted descending with ascending record id
// breaking ties; TotalResults counts every match above the threshold while
// Results holds at most Limit of them.
func (e *Engine) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	// Set defaults
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Metric == "" {
		req.Metric = types.MetricCosine
	}
	if req.ModelName == "" {
		req.ModelName = e.embedder.DefaultModel()
	}

	score := scorerFor(req.Metric)
	if score == nil {
		return nil, fmt.Errorf("unsupported metric %q: %w", req.Metric, types.ErrInvalidInput)
	}
	if req.Query == "" && len(req.QueryVector) == 0 {
		return nil, fmt.Errorf("query text or query vector required: %w", types.ErrInvalidInput)
	}

	// Result cache is keyed on query text; vector-only requests bypass it.
	cacheable := e.cache != nil && req.Query != ""
	var key string
	if cacheable {
		key = cache.SearchKey(req.ModelName, req.Query, req.Metric, req.Limit, req.Threshold)
		cached, ok := e.cache.Get(key)
		metrics.RecordCacheLookup(string(cache.NamespaceSearch), ok)
		if ok {
			if result, ok := cached.(*types.SearchResult); ok {
				return result, nil
			}
		}
	}

	queryVec := req.QueryVector
	if len(queryVec) == 0 {
		vec, err := e.embedder.GenerateEmbedding(ctx, req.Query, req.ModelName)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		queryVec = vec
	}

	records, err := e.store.FindByModel(ctx, req.ModelName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchFailed, err)
	}

	// Every candidate must match the query dimension before any scoring
	// happens, so a mismatch never yields a partial ranking.
	for _, rec := range records {
		if len(rec.Vector) != len(queryVec) {
			return nil, &types.DimensionMismatchError{
				Expected: len(queryVec),
				Actual:   len(rec.Vector),
				RecordID: rec.ID,
			}
		}
	}

	scored := make([]types.ScoredRecord, 0, len(records))
	for _, rec := range records {
		s := score(queryVec, rec.Vector)
		if s >= req.Threshold {
			scored = append(scored, types.ScoredRecord{Record: rec, Score: s})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].Record.ID < scored[j].Record.ID
		}
		return scored[i].Score > scored[j].Score
	})

	total := len(scored)
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	result := &types.SearchResult{
		Query:        req.Query,
		ModelName:    req.ModelName,
		TotalResults: total,
		Results:      scored,
	}

	if cacheable {
		e.cache.Set(key, result, e.ttls.Search)
	}

	return result, nil
}
