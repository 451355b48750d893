// Package types contains shared data types used across the ees project.
package types

import (
	"time"
)

// EmbeddingRecord is one stored embedding: a text identified by URI, vectorized
// under a specific model. The (URI, ModelName) pair is unique; creating the
// same pair again overwrites text and vector in place.
type EmbeddingRecord struct {
	ID        int64     `json:"id"`
	URI       string    `json:"uri"`
	ModelName string    `json:"model_name"`
	Text      string    `json:"text"`
	Vector    []float64 `json:"vector"`
	TaskType  string    `json:"task_type,omitempty"` // optional task hint (e.g. retrieval.query)
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dimensions returns the vector length.
func (r *EmbeddingRecord) Dimensions() int {
	return len(r.Vector)
}

// ModelDescriptor describes an embedding model offered by a provider.
// It is never persisted; descriptors are recomputed on each provider query
// and may be served from the model-list cache.
type ModelDescriptor struct {
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	Dimensions    int      `json:"dimensions"`
	MaxTokens     int      `json:"max_tokens"`
	PricePerToken float64  `json:"price_per_token"`
	Available     bool     `json:"available"`
	Languages     []string `json:"languages,omitempty"` // supported languages, when the model declares them
}

// ProviderType selects a provider implementation.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama" // local backend, no auth
	ProviderOpenAI ProviderType = "openai" // remote OpenAI-compatible backend, bearer auth
)

// Metric identifies a similarity metric.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotProduct"
)

// ValidMetric reports whether m names a known metric.
func ValidMetric(m Metric) bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
		return true
	}
	return false
}

// SearchRequest is a similarity search query. Either Query (free text, embedded
// via the active provider) or QueryVector must be set; QueryVector wins when
// both are present.
type SearchRequest struct {
	Query       string    `json:"query"`
	QueryVector []float64 `json:"-"`
	ModelName   string    `json:"model_name,omitempty"` // empty = provider default
	Metric      Metric    `json:"metric,omitempty"`     // default cosine
	Limit       int       `json:"limit,omitempty"`      // default 10
	Threshold   float64   `json:"threshold,omitempty"`  // minimum similarity score to keep
}

// ScoredRecord pairs a record with its similarity score. Scores are always on
// a higher-is-more-similar scale; euclidean distance is inverted to 1/(1+d)
// before scoring.
type ScoredRecord struct {
	Record *EmbeddingRecord `json:"record"`
	Score  float64          `json:"score"`
}

// SearchResult is the stable result shape of a similarity search.
type SearchResult struct {
	Query        string         `json:"query"`
	ModelName    string         `json:"model_name"`
	TotalResults int            `json:"total_results"`
	Results      []ScoredRecord `json:"results"`
}

// CreateRequest asks for one text to be embedded and stored.
type CreateRequest struct {
	URI       string `json:"uri"`
	Text      string `json:"text"`
	ModelName string `json:"model_name,omitempty"` // empty = provider default
	TaskType  string `json:"task_type,omitempty"`
}

// CreateResult identifies a record written by a create operation.
type CreateResult struct {
	ID        int64  `json:"id"`
	URI       string `json:"uri"`
	ModelName string `json:"model_name"`
}

// BatchText is one (uri, text) pair of a batch create.
type BatchText struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

// BatchCreateRequest embeds several texts under one model in a single call.
type BatchCreateRequest struct {
	ModelName string      `json:"model_name,omitempty"` // empty = provider default
	TaskType  string      `json:"task_type,omitempty"`
	Texts     []BatchText `json:"texts"`
}

// UpdateRequest is a partial record update. Nil fields stay untouched; a text
// change without an explicit vector re-embeds under the record's model.
type UpdateRequest struct {
	Text     *string   `json:"text,omitempty"`
	Vector   []float64 `json:"vector,omitempty"`
	TaskType *string   `json:"task_type,omitempty"`
}

// DefaultPageSize is the listing page size when the filter names none.
const DefaultPageSize = 50

// ListFilter narrows and pages a listing. URIPattern accepts * and ? globs.
// Page is 1-based; Limit 0 falls back to the default page size.
type ListFilter struct {
	URIPattern string `json:"uri,omitempty"`
	ModelName  string `json:"model_name,omitempty"`
	TaskType   string `json:"task_type,omitempty"`
	Page       int    `json:"page,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ListResult is a page of records plus the total count under the same filter.
type ListResult struct {
	Records []*EmbeddingRecord `json:"records"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
}

// BatchItem is the outcome of one item in a batch create.
type BatchItem struct {
	URI    string `json:"uri"`
	ID     int64  `json:"id,omitempty"`
	Status string `json:"status"` // "success" or "error"
	Error  string `json:"error,omitempty"`
}

// BatchResult aggregates a batch create.
type BatchResult struct {
	ModelName  string      `json:"model_name"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Results    []BatchItem `json:"results"`
}

// CompatibilityResult reports whether vectors can migrate between two models
// and how similar the models are. Dimension mismatch forces
// {Compatible: false, SimilarityScore: 0}.
type CompatibilityResult struct {
	Compatible      bool    `json:"compatible"`
	Reason          string  `json:"reason,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Per-item status values shared by batch create results and migration details.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MigrationOptions tunes a migration run. Use DefaultMigrationOptions as the
// base; the zero value disables continue-on-error.
type MigrationOptions struct {
	BatchSize        int  `json:"batch_size"`
	ContinueOnError  bool `json:"continue_on_error"`
	PreserveOriginal bool `json:"preserve_original"`
}

// DefaultMigrationOptions returns the documented defaults: batches of 100,
// continue past per-record failures, overwrite records in place.
func DefaultMigrationOptions() MigrationOptions {
	return MigrationOptions{
		BatchSize:       100,
		ContinueOnError: true,
	}
}

// MigrationDetail is the outcome of one record in a migration.
type MigrationDetail struct {
	ID     int64  `json:"id"`
	URI    string `json:"uri"`
	Status string `json:"status"` // "success" or "error"
	Error  string `json:"error,omitempty"`
}

// MigrationResult aggregates a migration run. Details preserve the input
// order (ascending record id).
type MigrationResult struct {
	FromModel      string            `json:"from_model"`
	ToModel        string            `json:"to_model"`
	TotalProcessed int               `json:"total_processed"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	DurationMs     int64             `json:"duration_ms"`
	Details        []MigrationDetail `json:"details"`
}

// ProviderStatus is a point-in-time reachability snapshot of one provider.
type ProviderStatus struct {
	Name         string       `json:"name"`
	Type         ProviderType `json:"type"`
	DefaultModel string       `json:"default_model,omitempty"`
	Available    bool         `json:"available"`
	Error        string       `json:"error,omitempty"`
	CheckedAt    time.Time    `json:"checked_at"`
}

// StoreStats contains statistics about the embedding store.
type StoreStats struct {
	TotalRecords   int            `json:"total_records"`
	RecordsByModel map[string]int `json:"records_by_model"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	OldestRecord   *time.Time     `json:"oldest_record,omitempty"`
	NewestRecord   *time.Time     `json:"newest_record,omitempty"`
}
