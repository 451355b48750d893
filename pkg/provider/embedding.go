// Package provider declares the pluggable embedding and storage surfaces
// and the registry that binds implementations to config names.
package provider

import (
	"context"
	"time"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// EmbeddingProvider generates vector embeddings from text.
//
// Implementations translate backend failures into *types.ProviderError so
// callers can branch on the kind (connection, authentication, rate limit,
// model) without knowing the backend.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "ollama", "openai").
	Name() string

	// DefaultModel returns the model used when a request names none.
	DefaultModel() string

	// GenerateEmbedding embeds a single text under the given model.
	// An empty model falls back to DefaultModel.
	GenerateEmbedding(ctx context.Context, text, model string) ([]float64, error)

	// ListModels returns the models this provider offers. Implementations
	// degrade to a static fallback list when the backend listing fails;
	// model discovery is advisory, not critical-path.
	ListModels(ctx context.Context) ([]types.ModelDescriptor, error)

	// IsModelAvailable reports whether the model can serve embeddings now.
	IsModelAvailable(ctx context.Context, model string) bool

	// GetModelInfo returns the descriptor for a model, or (nil, nil) when
	// the provider does not know it.
	GetModelInfo(ctx context.Context, model string) (*types.ModelDescriptor, error)

	// Available probes backend reachability. A nil return means the
	// provider can serve requests.
	Available(ctx context.Context) error

	// Close frees whatever the provider holds open.
	Close() error
}

// Config contains configuration for embedding providers. One instance is
// immutable per constructed provider.
type Config struct {
	Type         types.ProviderType // "ollama" or "openai"
	BaseURL      string             // backend endpoint; empty = provider default
	APIKey       string             // bearer credential (remote providers)
	DefaultModel string             // model used when a request names none
	Timeout      time.Duration      // per-call timeout; 0 = 5s
}

// DefaultTimeout bounds every outbound provider call unless configured
// otherwise. Expiry surfaces as a connection error.
const DefaultTimeout = 5 * time.Second

// EffectiveTimeout returns the configured timeout or the default.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}
