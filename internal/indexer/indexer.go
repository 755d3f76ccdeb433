package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baykov477/obsidian-local-gpt/internal/chunker"
	"github.com/baykov477/obsidian-local-gpt/internal/embedder"
	"github.com/baykov477/obsidian-local-gpt/internal/provider"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// ErrWarmInProgress is returned when Warm is called while another warm runs
var ErrWarmInProgress = errors.New("cache warm already in progress")

const (
	// DefaultMaxFileBytes skips notes larger than this
	DefaultMaxFileBytes = 2 << 20
)

// DefaultExtensions are the note file types that get warmed
var DefaultExtensions = []string{".md", ".txt"}

// Indexer pre-computes passage embeddings for a directory of notes so later
// retrievals over those notes are served from the cache: walk -> chunk -> embed
type Indexer struct {
	embedder *embedder.Embedder
	chunker  *chunker.Chunker
	lock     IndexLock
}

// Config contains configuration for a warm
type Config struct {
	Workers      int      // Number of concurrent files (default: runtime.NumCPU())
	Extensions   []string // File extensions to include (default: .md, .txt)
	MaxFileBytes int64    // Larger files are skipped (default: 2 MiB)

	// OnProgress, when set, is called after each file with the number of
	// files finished and the total. Calls may come from several goroutines.
	OnProgress func(done, total int)
}

// Statistics contains statistics about a warm
type Statistics struct {
	FilesWarmed      int
	FilesSkipped     int
	FilesFailed      int
	PassagesEmbedded int
	Duration         time.Duration
	ErrorMessages    []string
}

// New creates a new Indexer. A nil chunker gets the default passage size.
func New(emb *embedder.Embedder, ch *chunker.Chunker) *Indexer {
	if ch == nil {
		ch = chunker.New(chunker.DefaultChunkSize, chunker.DefaultOverlap)
	}
	return &Indexer{
		embedder: emb,
		chunker:  ch,
	}
}

// Busy reports whether a warm is running
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// Warm embeds every passage of every note under root with the client's
// embedding model. A file that fails is recorded in the statistics and the
// rest carry on; cancellation stops the whole warm.
func (idx *Indexer) Warm(ctx context.Context, root string, client provider.Client, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrWarmInProgress
	}
	defer idx.lock.Release()

	if client.Config().EmbeddingModel == "" {
		return nil, types.ErrNoEmbeddingModel
	}

	config = withDefaults(config)
	startTime := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	files, err := discoverFiles(root, config.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	stats, err := idx.warmFiles(ctx, root, client, files, config)
	if err != nil {
		return nil, err
	}
	stats.Duration = time.Since(startTime)
	return stats, nil
}

func withDefaults(config *Config) *Config {
	c := Config{}
	if config != nil {
		c = *config
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = DefaultMaxFileBytes
	}
	return &c
}

// discoverFiles finds the notes under root, skipping hidden directories
// such as .obsidian and .git
func discoverFiles(root string, extensions []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !hasExtension(path, extensions) {
			return nil
		}

		files = append(files, path)
		return nil
	})

	sort.Strings(files)
	return files, err
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// warmFiles embeds files on a bounded worker pool
func (idx *Indexer) warmFiles(ctx context.Context, root string, client provider.Client, files []string, config *Config) (*Statistics, error) {
	var (
		warmed   int32
		skipped  int32
		failed   int32
		passages int32
		done     int32
	)

	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}
	var mu sync.Mutex // Protect stats.ErrorMessages

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	for _, path := range files {
		g.Go(func() error {
			n, err := idx.warmFile(gctx, client, path, config.MaxFileBytes)
			switch {
			case gctx.Err() != nil:
				return types.ErrCancelled
			case errors.Is(err, errSkipped):
				atomic.AddInt32(&skipped, 1)
			case err != nil:
				atomic.AddInt32(&failed, 1)
				rel, relErr := filepath.Rel(root, path)
				if relErr != nil {
					rel = path
				}
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", rel, err))
				mu.Unlock()
			default:
				atomic.AddInt32(&warmed, 1)
			}
			atomic.AddInt32(&passages, int32(n))

			if config.OnProgress != nil {
				config.OnProgress(int(atomic.AddInt32(&done, 1)), len(files))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, types.ErrCancelled
	}

	sort.Strings(stats.ErrorMessages)
	stats.FilesWarmed = int(warmed)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	stats.PassagesEmbedded = int(passages)
	return stats, nil
}

var errSkipped = errors.New("skipped")

// warmFile embeds the passages of one note and returns how many succeeded.
// Passages are embedded in order and the first failure stops the file.
func (idx *Indexer) warmFile(ctx context.Context, client provider.Client, path string, maxBytes int64) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 || info.Size() > maxBytes {
		return 0, errSkipped
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, p := range idx.chunker.Split(string(content)) {
		if _, err := idx.embedder.Embed(ctx, client, p.Text); err != nil {
			return embedded, err
		}
		embedded++
	}
	if embedded == 0 {
		return 0, errSkipped
	}
	return embedded, nil
}
