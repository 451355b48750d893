package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested record is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderNotAvailable is returned when a provider is not available.
	ErrProviderNotAvailable = errors.New("provider not available")

	// ErrModelNotFound is returned when no provider knows the given model.
	ErrModelNotFound = errors.New("model not found")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrSearchFailed is returned when search fails.
	ErrSearchFailed = errors.New("search failed")
)

// ProviderErrorKind discriminates provider failures. The engine never retries
// on its own; callers pick a strategy by kind.
type ProviderErrorKind string

const (
	ProviderErrConnection     ProviderErrorKind = "connection"     // network failure or timeout
	ProviderErrAuthentication ProviderErrorKind = "authentication" // backend returned 401/403
	ProviderErrRateLimit      ProviderErrorKind = "rate_limit"     // backend returned 429
	ProviderErrModel          ProviderErrorKind = "model"          // unknown model or other backend 4xx/5xx
)

// ProviderError is a classified failure from an embedding backend.
type ProviderError struct {
	Kind     ProviderErrorKind
	Provider string
	Model    string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Model != "" {
		return fmt.Sprintf("%s: %s error (model %s): %s", e.Provider, e.Kind, e.Model, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewConnectionError classifies a network or timeout failure.
func NewConnectionError(provider, model string, err error) *ProviderError {
	return &ProviderError{Kind: ProviderErrConnection, Provider: provider, Model: model, Err: err}
}

// NewAuthenticationError classifies a 401/403 from the backend.
func NewAuthenticationError(provider, model, message string) *ProviderError {
	return &ProviderError{Kind: ProviderErrAuthentication, Provider: provider, Model: model, Message: message}
}

// NewRateLimitError classifies a 429 from the backend.
func NewRateLimitError(provider, model, message string) *ProviderError {
	return &ProviderError{Kind: ProviderErrRateLimit, Provider: provider, Model: model, Message: message}
}

// NewModelError classifies a missing model or an unclassified backend failure.
func NewModelError(provider, model, message string) *ProviderError {
	return &ProviderError{Kind: ProviderErrModel, Provider: provider, Model: model, Message: message}
}

// ProviderErrorOf extracts a ProviderError from err's chain, or nil.
func ProviderErrorOf(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// IsProviderErrorKind reports whether err carries a ProviderError of the
// given kind.
func IsProviderErrorKind(err error, kind ProviderErrorKind) bool {
	pe := ProviderErrorOf(err)
	return pe != nil && pe.Kind == kind
}

// StoreError wraps a persistence failure with the operation that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err as a store failure for the named operation.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// DimensionMismatchError reports a query vector whose length differs from a
// stored vector's. It indicates a model/data inconsistency and is surfaced
// before any scoring happens, never retried and never silently skipped.
type DimensionMismatchError struct {
	Expected int   // query vector length
	Actual   int   // stored vector length
	RecordID int64 // offending record, 0 if not record-specific
}

func (e *DimensionMismatchError) Error() string {
	if e.RecordID != 0 {
		return fmt.Sprintf("dimension mismatch: query has %d dimensions, record %d has %d", e.Expected, e.RecordID, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch: expected %d dimensions, got %d", e.Expected, e.Actual)
}

// IsDimensionMismatch reports whether err carries a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}

// IncompatibleModelsError aborts a migration whose source and target models
// cannot hold the same vectors.
type IncompatibleModelsError struct {
	FromModel string
	ToModel   string
	Reason    string
	Result    *CompatibilityResult
}

func (e *IncompatibleModelsError) Error() string {
	return fmt.Sprintf("models %s and %s are incompatible: %s", e.FromModel, e.ToModel, e.Reason)
}

// MigrationError is a migration failure carrying the partial result
// accumulated before the abort.
type MigrationError struct {
	Message string
	Result  *MigrationResult
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migration failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("migration failed: %s", e.Message)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
