// Package searcher implements retrieval over the note being edited.
//
// A Retriever splits the document into passages, embeds the query and every
// passage through the cached embedder, and returns the passages closest to the
// query by cosine similarity.
//
// # Basic Usage
//
//	r := searcher.New(emb, chunker.New(1000, 0), searcher.Options{TopK: 3})
//
//	passages, err := r.Retrieve(ctx, document, selection, client)
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // run the action without context
//	}
//
// # Ranking
//
// Passages are ordered by score, highest first. Equal scores keep the order
// they appear in the document. Passage embeddings run on a bounded errgroup;
// a passage whose embedding fails is skipped rather than failing the query.
//
// Vectors are cached per embedding model, so retrieving twice over the same
// note only calls the provider for the query and any edited passages.
package searcher
