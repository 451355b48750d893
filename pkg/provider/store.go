package provider

import (
	"context"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// CreateRecord carries the fields of a new embedding record.
type CreateRecord struct {
	URI       string
	ModelName string
	Text      string
	Vector    []float64
	TaskType  string // optional
}

// UpdateRecord carries a partial update. Nil pointer fields are left
// untouched; a nil Vector keeps the stored vector.
type UpdateRecord struct {
	Text      *string
	Vector    []float64
	ModelName *string
	TaskType  *string
}

// RecordStore handles embedding record persistence.
type RecordStore interface {
	// Create inserts a record, or updates text/vector/updated_at in place
	// when the (uri, model_name) pair already exists. The upsert is atomic;
	// concurrent creates for the same pair never produce duplicates.
	Create(ctx context.Context, rec CreateRecord) (*types.EmbeddingRecord, error)

	// FindByURI returns the record for (uri, model_name), or (nil, nil)
	// when none exists.
	FindByURI(ctx context.Context, uri, modelName string) (*types.EmbeddingRecord, error)

	// FindByID returns the record with the given id, or (nil, nil).
	FindByID(ctx context.Context, id int64) (*types.EmbeddingRecord, error)

	// FindAll returns one page of records matching the filter plus the
	// total match count ignoring paging.
	FindAll(ctx context.Context, filter types.ListFilter) ([]*types.EmbeddingRecord, int, error)

	// FindByModel returns every record for a model, ordered by ascending id.
	FindByModel(ctx context.Context, modelName string) ([]*types.EmbeddingRecord, error)

	// Update applies a partial update to a record and bumps updated_at.
	// Returns types.ErrNotFound when the id does not exist.
	Update(ctx context.Context, id int64, upd UpdateRecord) (*types.EmbeddingRecord, error)

	// Delete removes a record. Returns types.ErrNotFound when the id does
	// not exist.
	Delete(ctx context.Context, id int64) error

	// DeleteAll removes every record and returns the count removed.
	DeleteAll(ctx context.Context) (int64, error)
}

// StatsStore reports store statistics.
type StatsStore interface {
	// GetStats returns record counts and storage size.
	GetStats(ctx context.Context) (*types.StoreStats, error)
}

// Store covers store lifecycle, separate from record access.
type Store interface {
	// Name identifies the backend (e.g., "sqlite").
	Name() string

	// Init opens or creates the database at path.
	Init(path string) error

	// Close closes the underlying database.
	Close() error
}

// EmbeddingStore is the full persistence surface of the engine.
type EmbeddingStore interface {
	Store
	RecordStore
	StatsStore
}
