// Package indexer warms the embedding cache for a directory of notes.
//
// Retrieval embeds every passage of the active note on first use. Warming a
// vault ahead of time moves that cost out of the interactive path: later
// retrievals over unchanged passages are answered by the memory or SQLite
// tier of the cache instead of the provider.
//
// # Basic Usage
//
//	idx := indexer.New(emb, chunker.New(1000, 0))
//
//	stats, err := idx.Warm(ctx, "/path/to/vault", client, &indexer.Config{
//	    Workers: 4,
//	})
//
//	fmt.Printf("Warmed %d files (%d passages) in %v\n",
//	    stats.FilesWarmed, stats.PassagesEmbedded, stats.Duration)
//
// # Pipeline
//
//  1. Discovery: walk the directory for .md and .txt files, skipping hidden
//     directories (.obsidian, .git, .trash)
//  2. Chunk: split each note with the same chunker retrieval uses, so the
//     cached passages are exactly the ones Retrieve will ask for
//  3. Embed: resolve each passage through the cached embedder
//
// Files are processed concurrently on an errgroup bounded by Config.Workers.
// A file that fails to read or embed is counted and reported in
// Statistics.ErrorMessages; the warm carries on with the others.
// Empty and oversized files are skipped.
//
// Since the cache is keyed by content hash there is no separate change
// tracking: re-warming a vault only calls the provider for edited passages.
//
// # Concurrency
//
// Only one warm runs at a time per Indexer. A concurrent call returns
// ErrWarmInProgress immediately rather than waiting.
package indexer
