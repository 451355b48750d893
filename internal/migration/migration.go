package migration

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/SuzumiyaAoba/ees-sub005/internal/cache"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Migrator moves records between embedding models by re-embedding their
// text with the target model.
type Migrator struct {
	store     provider.RecordStore
	providers *provider.Set
	cache     *cache.Cache // may be nil
	workers   int
}

// Config contains migrator configuration.
type Config struct {
	Store     provider.RecordStore
	Providers *provider.Set
	Cache     *cache.Cache // optional
	Workers   int          // 0 = NumCPU
}

// New creates a migrator.
func New(cfg Config) *Migrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Migrator{
		store:     cfg.Store,
		providers: cfg.Providers,
		cache:     cfg.Cache,
		workers:   workers,
	}
}

// Migrate re-embeds every record of fromModel with toModel. Records move in
// batches; within a batch re-embedding runs on a worker pool capped at the
// batch size. Details preserve ascending-id input order.
//
// An incompatible model pair aborts before any record is touched with
// IncompatibleModelsError. With ContinueOnError off, a failing record lets
// its batch drain and then stops the run with a MigrationError carrying the
// partial result.
//
// Without PreserveOriginal each record moves in place, keeping its id and
// uri; with it the original stays and a (uri, toModel) copy is upserted.
// The run is at-least-once and non-transactional: a re-run re-selects by
// fromModel, and moved records no longer match, so it has nothing left to
// process.
func (m *Migrator) Migrate(ctx context.Context, fromModel, toModel string, opts types.MigrationOptions) (*types.MigrationResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = types.DefaultMigrationOptions().BatchSize
	}
	if fromModel == toModel {
		return nil, fmt.Errorf("source and target model are both %q: %w", fromModel, types.ErrInvalidInput)
	}

	compat, err := m.ValidateCompatibility(ctx, fromModel, toModel)
	if err != nil {
		return nil, err
	}
	if !compat.Compatible {
		return nil, &types.IncompatibleModelsError{
			FromModel: fromModel,
			ToModel:   toModel,
			Reason:    compat.Reason,
			Result:    compat,
		}
	}

	target, _, err := m.providers.ResolveModel(ctx, toModel)
	if err != nil {
		return nil, err
	}

	records, err := m.store.FindByModel(ctx, fromModel)
	if err != nil {
		return nil, fmt.Errorf("loading records for %s: %w", fromModel, err)
	}

	start := time.Now()
	result := &types.MigrationResult{
		FromModel: fromModel,
		ToModel:   toModel,
		Details:   make([]types.MigrationDetail, 0, len(records)),
	}

	slog.Info("migration started",
		"from", fromModel, "to", toModel,
		"records", len(records), "batch_size", opts.BatchSize)

	for batchStart := 0; batchStart < len(records); batchStart += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			result.DurationMs = time.Since(start).Milliseconds()
			return nil, &types.MigrationError{Message: "migration canceled", Result: result, Err: err}
		}

		end := batchStart + opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[batchStart:end]

		details := m.migrateBatch(ctx, target, toModel, batch, opts.PreserveOriginal)

		batchFailed := false
		for _, d := range details {
			result.Details = append(result.Details, d)
			result.TotalProcessed++
			if d.Status == types.StatusSuccess {
				result.Successful++
			} else {
				result.Failed++
				batchFailed = true
			}
		}

		if batchFailed && !opts.ContinueOnError {
			result.DurationMs = time.Since(start).Milliseconds()
			return nil, &types.MigrationError{
				Message: fmt.Sprintf("stopped after %d of %d records", result.TotalProcessed, len(records)),
				Result:  result,
			}
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()

	slog.Info("migration finished",
		"from", fromModel, "to", toModel,
		"successful", result.Successful, "failed", result.Failed,
		"duration_ms", result.DurationMs)

	return result, nil
}

// migrateBatch re-embeds one batch on a worker pool. Each worker fills
// disjoint slots of the details slice, so order follows the batch and no
// locking is needed.
func (m *Migrator) migrateBatch(ctx context.Context, target provider.EmbeddingProvider, toModel string, batch []*types.EmbeddingRecord, preserve bool) []types.MigrationDetail {
	workers := m.workers
	if workers > len(batch) {
		workers = len(batch)
	}

	details := make([]types.MigrationDetail, len(batch))
	jobCh := make(chan int, len(batch))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				details[j] = m.migrateRecord(ctx, target, toModel, batch[j], preserve)
			}
		}()
	}

	for j := range batch {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	return details
}

func (m *Migrator) migrateRecord(ctx context.Context, target provider.EmbeddingProvider, toModel string, rec *types.EmbeddingRecord, preserve bool) types.MigrationDetail {
	detail := types.MigrationDetail{ID: rec.ID, URI: rec.URI}

	if err := ctx.Err(); err != nil {
		detail.Status = types.StatusError
		detail.Error = err.Error()
		return detail
	}

	vec, err := target.GenerateEmbedding(ctx, rec.Text, toModel)
	if err != nil {
		detail.Status = types.StatusError
		detail.Error = err.Error()
		return detail
	}

	if preserve {
		// Leave the original untouched; write (or refresh) the target copy.
		_, err = m.store.Create(ctx, provider.CreateRecord{
			URI:       rec.URI,
			ModelName: toModel,
			Text:      rec.Text,
			Vector:    vec,
			TaskType:  rec.TaskType,
		})
	} else {
		// Move the record in place: same id and uri, new model and vector.
		_, err = m.store.Update(ctx, rec.ID, provider.UpdateRecord{
			Vector:    vec,
			ModelName: &toModel,
		})
	}
	if err != nil {
		detail.Status = types.StatusError
		detail.Error = err.Error()
		return detail
	}

	if m.cache != nil {
		m.cache.Delete(cache.EmbeddingKey(rec.ModelName, rec.URI))
		m.cache.Delete(cache.EmbeddingKey(toModel, rec.URI))
	}

	detail.Status = types.StatusSuccess
	return detail
}
