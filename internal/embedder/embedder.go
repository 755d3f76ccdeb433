package embedder

import (
	"context"
	"fmt"

	"github.com/baykov477/obsidian-local-gpt/internal/metrics"
	"github.com/baykov477/obsidian-local-gpt/internal/provider"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// Lookup results reported to metrics
const (
	ResultMemory   = "memory"
	ResultStore    = "store"
	ResultProvider = "provider"
)

// Store is the persistent cache tier
type Store interface {
	GetEmbedding(ctx context.Context, hash, model string) ([]float32, error)
	UpsertEmbedding(ctx context.Context, hash, model string, vec []float32) error
	PruneEmbeddings(ctx context.Context, keepModel string) error
	ClearEmbeddings(ctx context.Context) error
}

// Embedder resolves embeddings through the memory cache, then the store, then the provider
type Embedder struct {
	cache   *Cache
	store   Store
	metrics *metrics.Metrics
}

// Option configures an Embedder
type Option func(*Embedder)

// WithStore adds a persistent tier behind the memory cache
func WithStore(s Store) Option {
	return func(e *Embedder) {
		e.store = s
	}
}

// WithMetrics records which tier answered each lookup
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Embedder) {
		e.metrics = m
	}
}

// New creates an Embedder. A nil cache gets a default-sized one.
func New(cache *Cache, opts ...Option) *Embedder {
	if cache == nil {
		cache = NewCache(DefaultCacheSize)
	}
	e := &Embedder{cache: cache}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the memory tier
func (e *Embedder) Cache() *Cache {
	return e.cache
}

// Embed returns the vector for text under the client's embedding model.
// Vectors are keyed by model, so a model other than the active one is never
// served another model's vectors; call Activate to drop the old ones.
func (e *Embedder) Embed(ctx context.Context, client provider.Client, text string) ([]float32, error) {
	if text == "" {
		return nil, types.ErrEmptyText
	}
	cfg := client.Config()
	key := cfg.EmbeddingKey()
	if key == "" {
		return nil, types.ErrNoEmbeddingModel
	}

	if vec, ok := e.cache.Get(text, key); ok {
		e.metrics.IncEmbeddingLookup(ResultMemory)
		return vec, nil
	}

	hash := ComputeHash(text)
	if e.store != nil {
		// Store errors degrade to a miss
		if vec, err := e.store.GetEmbedding(ctx, hash, key); err == nil && len(vec) > 0 {
			e.cache.Put(text, key, vec)
			e.metrics.IncEmbeddingLookup(ResultStore)
			return vec, nil
		}
	}

	vec, err := client.Embed(ctx, text, cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	e.metrics.IncEmbeddingLookup(ResultProvider)

	e.cache.Put(text, key, vec)
	if e.store != nil {
		// Write-back is best effort
		_ = e.store.UpsertEmbedding(ctx, hash, key, vec)
	}
	return vec, nil
}

// Activate makes key the active embedding model, pruning vectors of any other
// model. The switch is only recorded once the prune succeeded, so a failed
// Activate can be retried.
func (e *Embedder) Activate(ctx context.Context, key string) error {
	if key == e.cache.Model() {
		return nil
	}
	if e.store != nil {
		if err := e.store.PruneEmbeddings(ctx, key); err != nil {
			return fmt.Errorf("prune embeddings: %w", err)
		}
	}
	e.cache.SetModel(key)
	return nil
}

// ClearAll empties the memory cache and the store
func (e *Embedder) ClearAll(ctx context.Context) error {
	e.cache.Clear()
	if e.store == nil {
		return nil
	}
	if err := e.store.ClearEmbeddings(ctx); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}
