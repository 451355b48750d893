package provider

import (
	"fmt"
	"sync"
)

// EmbeddingFactory builds an EmbeddingProvider from its runtime config.
type EmbeddingFactory func(config Config) (EmbeddingProvider, error)

// StoreFactory creates an EmbeddingStore.
type StoreFactory func(path string) (EmbeddingStore, error)

// factories is a mutex-guarded name-to-factory map. kind names the factory
// family in error messages.
type factories[F any] struct {
	mu   sync.RWMutex
	kind string
	m    map[string]F
}

func newFactories[F any](kind string) *factories[F] {
	return &factories[F]{kind: kind, m: make(map[string]F)}
}

func (f *factories[F]) put(name string, factory F) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = factory
}

func (f *factories[F]) get(name string) (F, error) {
	f.mu.RLock()
	factory, ok := f.m[name]
	f.mu.RUnlock()

	if !ok {
		var zero F
		return zero, fmt.Errorf("unknown %s: %s (available: %v)", f.kind, name, f.names())
	}
	return factory, nil
}

func (f *factories[F]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	return out
}

func (f *factories[F]) has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.m[name]
	return ok
}

// Registry holds factories for all provider types.
type Registry struct {
	embedding *factories[EmbeddingFactory]
	stores    *factories[StoreFactory]
}

// NewRegistry returns a registry with nothing registered.
func NewRegistry() *Registry {
	return &Registry{
		embedding: newFactories[EmbeddingFactory]("embedding provider"),
		stores:    newFactories[StoreFactory]("store"),
	}
}

// RegisterEmbedding registers an embedding provider factory under a type name.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.embedding.put(name, factory)
}

// RegisterStore registers a store factory.
func (r *Registry) RegisterStore(name string, factory StoreFactory) {
	r.stores.put(name, factory)
}

// CreateEmbedding creates an embedding provider by type name.
func (r *Registry) CreateEmbedding(name string, config Config) (EmbeddingProvider, error) {
	factory, err := r.embedding.get(name)
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// CreateStore creates an embedding store by name.
func (r *Registry) CreateStore(name, path string) (EmbeddingStore, error) {
	factory, err := r.stores.get(name)
	if err != nil {
		return nil, err
	}
	return factory(path)
}

// ListEmbeddings returns all registered embedding provider type names.
func (r *Registry) ListEmbeddings() []string { return r.embedding.names() }

// ListStores returns all registered store names.
func (r *Registry) ListStores() []string { return r.stores.names() }

// HasEmbedding checks if an embedding provider type is registered.
func (r *Registry) HasEmbedding(name string) bool { return r.embedding.has(name) }

// HasStore checks if a store is registered.
func (r *Registry) HasStore(name string) bool { return r.stores.has(name) }

// DefaultRegistry is the global default registry.
var DefaultRegistry = NewRegistry()

// RegisterEmbedding adds an embedding provider factory to DefaultRegistry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	DefaultRegistry.RegisterEmbedding(name, factory)
}

// RegisterStore adds a store factory to DefaultRegistry.
func RegisterStore(name string, factory StoreFactory) {
	DefaultRegistry.RegisterStore(name, factory)
}
