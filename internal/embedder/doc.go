// Package embedder caches passage embeddings in front of the model servers.
//
// # Cache
//
// Cache is an in-memory LRU keyed by the SHA-256 of the text plus the embedding
// model key, so a vector computed under one model is never returned for another:
//
//	cache := embedder.NewCache(10000)
//	cache.Put(text, "ollama/nomic-embed-text", vec)
//	vec, ok := cache.Get(text, "ollama/nomic-embed-text")
//
// SetModel tracks the active model key and clears the cache when it changes.
// Vectors are copied on the way in and out so callers cannot corrupt cached
// values. The cache is safe for concurrent use; a Clear racing a Put may drop
// that one entry, which only costs a recomputation.
//
// # Embedder
//
// Embedder resolves a vector in three tiers:
//
//  1. the memory Cache
//  2. an optional persistent Store (SQLite, see internal/storage)
//  3. the provider's embedding endpoint
//
// Results from a lower tier are written back to the tiers above it.
//
//	emb := embedder.New(embedder.NewCache(0), embedder.WithStore(db))
//	vec, err := emb.Embed(ctx, client, passage.Text)
//
// The embedding model comes from the client's ProviderConfig. A client
// without an embedding model yields types.ErrNoEmbeddingModel.
//
// Activate is called once when the configured model is known. It prunes
// stored vectors of every other model and then clears the memory tier:
//
//	if err := emb.Activate(ctx, cfg.EmbeddingModelKey()); err != nil {
//		logger.Warn("failed to prune stale embeddings", zap.Error(err))
//	}
package embedder
