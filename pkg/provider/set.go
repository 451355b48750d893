package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Set holds the constructed provider instances named in configuration plus
// the one active provider. Create and search always go through the active
// provider; compatibility checks and migrations resolve models across the
// whole set.
type Set struct {
	active    string
	providers map[string]EmbeddingProvider
}

// NewSet creates a set with the given active provider name. Providers are
// added with Add before first use.
func NewSet(active string) *Set {
	return &Set{
		active:    active,
		providers: make(map[string]EmbeddingProvider),
	}
}

// Add registers a constructed provider under its config name.
func (s *Set) Add(name string, p EmbeddingProvider) {
	s.providers[name] = p
}

// Active returns the active provider.
func (s *Set) Active() EmbeddingProvider {
	return s.providers[s.active]
}

// ActiveName returns the active provider's config name.
func (s *Set) ActiveName() string {
	return s.active
}

// Get returns the provider registered under name, or nil.
func (s *Set) Get(name string) EmbeddingProvider {
	return s.providers[name]
}

// Names returns all provider names, active first, the rest sorted.
func (s *Set) Names() []string {
	rest := make([]string, 0, len(s.providers))
	for name := range s.providers {
		if name != s.active {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	names := make([]string, 0, len(s.providers))
	if _, ok := s.providers[s.active]; ok {
		names = append(names, s.active)
	}
	return append(names, rest...)
}

// ResolveModel finds the provider that knows the given model, checking the
// active provider first and the rest in name order. Returns the provider and
// the model's descriptor, or types.ErrModelNotFound when no provider knows it.
func (s *Set) ResolveModel(ctx context.Context, model string) (EmbeddingProvider, *types.ModelDescriptor, error) {
	if model == "" {
		return nil, nil, fmt.Errorf("resolve model: %w", types.ErrModelNotFound)
	}

	for _, name := range s.Names() {
		p := s.providers[name]
		desc, err := p.GetModelInfo(ctx, model)
		if err != nil {
			continue
		}
		if desc != nil {
			return p, desc, nil
		}
	}
	return nil, nil, fmt.Errorf("resolve model %q: %w", model, types.ErrModelNotFound)
}

// Close closes every provider, returning the first error encountered.
func (s *Set) Close() error {
	var firstErr error
	for _, name := range s.Names() {
		if err := s.providers[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
