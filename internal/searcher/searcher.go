package searcher

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/baykov477/obsidian-local-gpt/internal/chunker"
	"github.com/baykov477/obsidian-local-gpt/internal/embedder"
	"github.com/baykov477/obsidian-local-gpt/internal/provider"
	"github.com/baykov477/obsidian-local-gpt/internal/storage"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

const (
	// DefaultTopK is the number of passages returned when Options.TopK is unset
	DefaultTopK = 3

	// DefaultConcurrency bounds concurrent passage embedding requests
	DefaultConcurrency = 4
)

// Options configures a Retriever
type Options struct {
	TopK        int
	Concurrency int
}

// Retriever ranks the passages of a document by similarity to a query
type Retriever struct {
	embedder *embedder.Embedder
	chunker  *chunker.Chunker
	topK     int
	workers  int
}

// New creates a Retriever. A nil chunker gets the default passage size.
func New(emb *embedder.Embedder, ch *chunker.Chunker, opts Options) *Retriever {
	if ch == nil {
		ch = chunker.New(chunker.DefaultChunkSize, chunker.DefaultOverlap)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Retriever{
		embedder: emb,
		chunker:  ch,
		topK:     opts.TopK,
		workers:  opts.Concurrency,
	}
}

// TopK returns the maximum number of passages Retrieve returns
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns up to TopK passages of document, most similar to query first.
//
// An empty document, or a client without an embedding model, yields no passages
// and no error. Failing to embed the query returns ErrEmbeddingUnavailable.
// Passages whose embedding fails are left out of the ranking.
func (r *Retriever) Retrieve(ctx context.Context, document, query string, client provider.Client) ([]types.Passage, error) {
	if document == "" || client.Config().EmbeddingModel == "" {
		return nil, nil
	}
	if query == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, types.ErrEmptyText)
	}

	queryVec, err := r.embedder.Embed(ctx, client, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.ErrCancelled
		}
		return nil, fmt.Errorf("%w: query: %w", types.ErrEmbeddingUnavailable, err)
	}

	passages := r.chunker.Split(document)
	if len(passages) == 0 {
		return nil, nil
	}

	// Each worker writes only its own slot
	embedded := make([]bool, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range passages {
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, client, passages[i].Text)
			if err != nil {
				if gctx.Err() != nil {
					return types.ErrCancelled
				}
				return nil
			}
			passages[i].Vector = vec
			passages[i].Score = storage.CosineSimilarity(queryVec, vec)
			embedded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, types.ErrCancelled
	}

	ranked := make([]types.Passage, 0, len(passages))
	for i, p := range passages {
		if embedded[i] {
			ranked = append(ranked, p)
		}
	}
	return topPassages(ranked, r.topK), nil
}

// topPassages sorts by score descending, keeping document order among ties
func topPassages(passages []types.Passage, k int) []types.Passage {
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages
}
