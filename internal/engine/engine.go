// Package engine wires the store, the provider set, the cache, search and
// migration into the one operation surface the HTTP API and the CLI call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SuzumiyaAoba/ees-sub005/internal/cache"
	"github.com/SuzumiyaAoba/ees-sub005/internal/metrics"
	"github.com/SuzumiyaAoba/ees-sub005/internal/migration"
	"github.com/SuzumiyaAoba/ees-sub005/internal/search"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Engine owns the cache policy: every read path probes its namespace first,
// every write path invalidates exactly the (uri, model) embedding key it
// touched. Callers never talk to the cache directly.
type Engine struct {
	store     provider.EmbeddingStore
	providers *provider.Set
	cache     *cache.Cache // may be nil
	ttls      cache.TTLConfig
	search    *search.Engine
	migrator  *migration.Migrator
}

// Config contains engine configuration.
type Config struct {
	Store     provider.EmbeddingStore
	Providers *provider.Set
	Cache     *cache.Cache    // optional
	TTL       cache.TTLConfig // zero value disables expiry; use cache.DefaultTTLConfig
	Workers   int             // migration pool cap, 0 = NumCPU
}

// New creates an engine. Every provider in the set is wrapped so its
// embedding calls land in the Prometheus counters.
func New(cfg Config) *Engine {
	providers := provider.NewSet(cfg.Providers.ActiveName())
	for _, name := range cfg.Providers.Names() {
		providers.Add(name, instrumented{cfg.Providers.Get(name)})
	}

	if cfg.Cache != nil {
		cfg.Cache.OnEvict(metrics.RecordCacheEviction)
	}

	return &Engine{
		store:     cfg.Store,
		providers: providers,
		cache:     cfg.Cache,
		ttls:      cfg.TTL,
		search: search.New(search.Config{
			Store:    cfg.Store,
			Embedder: instrumented{cfg.Providers.Active()},
			Cache:    cfg.Cache,
			TTL:      cfg.TTL,
		}),
		migrator: migration.New(migration.Config{
			Store:     cfg.Store,
			Providers: providers,
			Cache:     cfg.Cache,
			Workers:   cfg.Workers,
		}),
	}
}

// Providers returns the provider set.
func (e *Engine) Providers() *provider.Set {
	return e.providers
}

// CreateEmbedding embeds text with the active provider and stores it under
// (uri, model). An existing (uri, model) record is overwritten in place.
func (e *Engine) CreateEmbedding(ctx context.Context, req types.CreateRequest) (*types.EmbeddingRecord, error) {
	if req.URI == "" {
		return nil, fmt.Errorf("uri is required: %w", types.ErrInvalidInput)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("text is required: %w", types.ErrInvalidInput)
	}

	model := req.ModelName
	if model == "" {
		model = e.providers.Active().DefaultModel()
	}

	vec, err := e.providers.Active().GenerateEmbedding(ctx, req.Text, model)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	rec, err := e.store.Create(ctx, provider.CreateRecord{
		URI:       req.URI,
		ModelName: model,
		Text:      req.Text,
		Vector:    vec,
		TaskType:  req.TaskType,
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(model, req.URI)
	return rec, nil
}

// CreateBatch embeds several texts under one model. Items are processed in
// order; a failing item is captured in its result slot and the batch keeps
// going.
func (e *Engine) CreateBatch(ctx context.Context, req types.BatchCreateRequest) (*types.BatchResult, error) {
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("texts are required: %w", types.ErrInvalidInput)
	}

	model := req.ModelName
	if model == "" {
		model = e.providers.Active().DefaultModel()
	}

	result := &types.BatchResult{
		ModelName: model,
		Results:   make([]types.BatchItem, 0, len(req.Texts)),
	}
	for _, item := range req.Texts {
		out := types.BatchItem{URI: item.URI, Status: types.StatusSuccess}

		rec, err := e.CreateEmbedding(ctx, types.CreateRequest{
			URI:       item.URI,
			Text:      item.Text,
			ModelName: model,
			TaskType:  req.TaskType,
		})
		if err != nil {
			out.Status = types.StatusError
			out.Error = err.Error()
			result.Failed++
		} else {
			out.ID = rec.ID
			result.Successful++
		}
		result.Results = append(result.Results, out)
	}
	return result, nil
}

// GetEmbedding returns the record for (uri, model), probing the embedding
// cache first. An empty model means the active provider's default.
func (e *Engine) GetEmbedding(ctx context.Context, uri, modelName string) (*types.EmbeddingRecord, error) {
	if uri == "" {
		return nil, fmt.Errorf("uri is required: %w", types.ErrInvalidInput)
	}

	model := modelName
	if model == "" {
		model = e.providers.Active().DefaultModel()
	}

	key := cache.EmbeddingKey(model, uri)
	if e.cache != nil {
		v, ok := e.cache.Get(key)
		metrics.RecordCacheLookup(string(cache.NamespaceEmbedding), ok)
		if ok {
			if rec, ok := v.(*types.EmbeddingRecord); ok {
				return rec, nil
			}
		}
	}

	rec, err := e.store.FindByURI(ctx, uri, model)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("embedding for %q under %q: %w", uri, model, types.ErrNotFound)
	}

	if e.cache != nil {
		e.cache.Set(key, rec, e.ttls.Embedding)
	}
	return rec, nil
}

// GetEmbeddingByID returns the record with the given id.
func (e *Engine) GetEmbeddingByID(ctx context.Context, id int64) (*types.EmbeddingRecord, error) {
	rec, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}
	return rec, nil
}

// ListEmbeddings returns one page of records matching the filter.
func (e *Engine) ListEmbeddings(ctx context.Context, filter types.ListFilter) (*types.ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = types.DefaultPageSize
	}

	records, total, err := e.store.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &types.ListResult{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	}, nil
}

// UpdateEmbedding applies a partial update to a record. A text change
// without an explicit vector re-embeds the new text under the record's
// model, resolved across the provider set.
func (e *Engine) UpdateEmbedding(ctx context.Context, id int64, req types.UpdateRequest) (*types.EmbeddingRecord, error) {
	if req.Text == nil && req.Vector == nil && req.TaskType == nil {
		return nil, fmt.Errorf("no fields to update: %w", types.ErrInvalidInput)
	}

	existing, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}

	upd := provider.UpdateRecord{
		Text:     req.Text,
		Vector:   req.Vector,
		TaskType: req.TaskType,
	}
	if req.Text != nil && req.Vector == nil && *req.Text != existing.Text {
		p, _, err := e.providers.ResolveModel(ctx, existing.ModelName)
		if err != nil {
			return nil, err
		}
		vec, err := p.GenerateEmbedding(ctx, *req.Text, existing.ModelName)
		if err != nil {
			return nil, fmt.Errorf("failed to regenerate embedding: %w", err)
		}
		upd.Vector = vec
	}

	rec, err := e.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	e.invalidate(rec.ModelName, rec.URI)
	return rec, nil
}

// DeleteEmbedding removes a record by id.
func (e *Engine) DeleteEmbedding(ctx context.Context, id int64) error {
	rec, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %d: %w", id, types.ErrNotFound)
	}

	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}

	e.invalidate(rec.ModelName, rec.URI)
	return nil
}

// DeleteByURI removes every record stored for uri, across all models, and
// returns the count removed. Unknown URIs delete zero records without error.
func (e *Engine) DeleteByURI(ctx context.Context, uri string) (int, error) {
	if uri == "" {
		return 0, fmt.Errorf("uri is required: %w", types.ErrInvalidInput)
	}

	deleted := 0
	for {
		records, _, err := e.store.FindAll(ctx, types.ListFilter{URIPattern: uri, Limit: types.DefaultPageSize})
		if err != nil {
			return deleted, err
		}
		if len(records) == 0 {
			return deleted, nil
		}
		for _, rec := range records {
			if err := e.store.Delete(ctx, rec.ID); err != nil {
				return deleted, err
			}
			e.invalidate(rec.ModelName, rec.URI)
			deleted++
		}
	}
}

// DeleteAll removes every record and clears the cache. Returns the count
// removed.
func (e *Engine) DeleteAll(ctx context.Context) (int64, error) {
	n, err := e.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	if e.cache != nil {
		e.cache.Flush()
	}

	slog.Info("store cleared", "records", n)
	return n, nil
}

// ListModels aggregates every provider's model listing, active provider
// first. Each provider's listing is cached under the models TTL. Providers
// degrade to their static catalogs internally, so a down backend still
// contributes entries.
func (e *Engine) ListModels(ctx context.Context) ([]types.ModelDescriptor, error) {
	var out []types.ModelDescriptor
	for _, name := range e.providers.Names() {
		p := e.providers.Get(name)
		key := cache.ModelsKey(name)

		if e.cache != nil {
			v, ok := e.cache.Get(key)
			metrics.RecordCacheLookup(string(cache.NamespaceModels), ok)
			if ok {
				if models, ok := v.([]types.ModelDescriptor); ok {
					out = append(out, models...)
					continue
				}
			}
		}

		models, err := p.ListModels(ctx)
		if err != nil {
			slog.Warn("model listing failed", "provider", name, "error", err)
			continue
		}
		if e.cache != nil {
			e.cache.Set(key, models, e.ttls.Models)
		}
		out = append(out, models...)
	}
	return out, nil
}

// GetModelInfo returns the descriptor for a model from whichever provider
// knows it, the active provider first.
func (e *Engine) GetModelInfo(ctx context.Context, model string) (*types.ModelDescriptor, error) {
	_, desc, err := e.providers.ResolveModel(ctx, model)
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// ProviderStatus checks reachability of every provider. Snapshots are cached
// briefly so status pages don't hammer the backends.
func (e *Engine) ProviderStatus(ctx context.Context) []types.ProviderStatus {
	names := e.providers.Names()
	statuses := make([]types.ProviderStatus, 0, len(names))

	for _, name := range names {
		p := e.providers.Get(name)
		key := cache.ProviderStatusKey(name)

		if e.cache != nil {
			v, ok := e.cache.Get(key)
			metrics.RecordCacheLookup(string(cache.NamespaceProviderStatus), ok)
			if ok {
				if status, ok := v.(types.ProviderStatus); ok {
					statuses = append(statuses, status)
					continue
				}
			}
		}

		status := types.ProviderStatus{
			Name:         name,
			Type:         types.ProviderType(p.Name()),
			DefaultModel: p.DefaultModel(),
			CheckedAt:    time.Now().UTC(),
		}
		if err := p.Available(ctx); err != nil {
			status.Error = err.Error()
		} else {
			status.Available = true
		}

		if e.cache != nil {
			e.cache.Set(key, status, e.ttls.ProviderStatus)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Search runs a similarity search.
func (e *Engine) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	return e.search.Search(ctx, req)
}

// ValidateCompatibility scores how well vectors migrate between two models.
func (e *Engine) ValidateCompatibility(ctx context.Context, fromModel, toModel string) (*types.CompatibilityResult, error) {
	return e.migrator.ValidateCompatibility(ctx, fromModel, toModel)
}

// Migrate re-embeds every record of fromModel under toModel.
func (e *Engine) Migrate(ctx context.Context, fromModel, toModel string, opts types.MigrationOptions) (*types.MigrationResult, error) {
	result, err := e.migrator.Migrate(ctx, fromModel, toModel, opts)
	if err != nil {
		var migErr *types.MigrationError
		if errors.As(err, &migErr) {
			metrics.RecordMigration(migErr.Result)
		}
		return nil, err
	}

	metrics.RecordMigration(result)
	return result, nil
}

// Stats returns store statistics.
func (e *Engine) Stats(ctx context.Context) (*types.StoreStats, error) {
	return e.store.GetStats(ctx)
}

// CacheStats returns cache counters; the zero snapshot when caching is off.
func (e *Engine) CacheStats() cache.Stats {
	if e.cache == nil {
		return cache.Stats{}
	}
	return e.cache.Stats()
}

// Close clears the cache and closes the providers and the store.
func (e *Engine) Close() error {
	if e.cache != nil {
		e.cache.Flush()
	}
	err := e.providers.Close()
	if storeErr := e.store.Close(); storeErr != nil && err == nil {
		err = storeErr
	}
	return err
}

// invalidate drops the embedding-cache entry for one (uri, model) pair.
// Search entries age out on their own TTL.
func (e *Engine) invalidate(model, uri string) {
	if e.cache != nil {
		e.cache.Delete(cache.EmbeddingKey(model, uri))
	}
}

// instrumented decorates a provider so every embedding call is counted and
// timed per provider, model and outcome.
type instrumented struct {
	provider.EmbeddingProvider
}

func (p instrumented) GenerateEmbedding(ctx context.Context, text, model string) ([]float64, error) {
	label := model
	if label == "" {
		label = p.DefaultModel()
	}

	start := time.Now()
	vec, err := p.EmbeddingProvider.GenerateEmbedding(ctx, text, model)
	metrics.RecordProviderRequest(p.Name(), label, err, time.Since(start))
	return vec, err
}
