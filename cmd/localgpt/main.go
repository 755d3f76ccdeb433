// Command localgpt runs a saved action over stdin from the terminal.
//
//	echo "some notes" | localgpt -action Summarize
//	localgpt -action "General help" -document note.md < question.txt
//	localgpt -list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/baykov477/obsidian-local-gpt/internal/actions"
	"github.com/baykov477/obsidian-local-gpt/internal/chunker"
	"github.com/baykov477/obsidian-local-gpt/internal/config"
	"github.com/baykov477/obsidian-local-gpt/internal/embedder"
	"github.com/baykov477/obsidian-local-gpt/internal/logging"
	"github.com/baykov477/obsidian-local-gpt/internal/orchestrator"
	"github.com/baykov477/obsidian-local-gpt/internal/provider"
	"github.com/baykov477/obsidian-local-gpt/internal/searcher"
	"github.com/baykov477/obsidian-local-gpt/internal/storage"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

func main() {
	actionName := flag.String("action", "", "name of the action to run")
	configPath := flag.String("config", "", "path to config file")
	documentPath := flag.String("document", "", "note to retrieve context from")
	creativity := flag.String("creativity", "", "temperature preset: low, medium or high")
	list := flag.Bool("list", false, "list actions and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, *configPath, *actionName, *documentPath, *creativity, *list)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrCancelled):
		os.Exit(130)
	default:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, actionName, documentPath, creativity string, list bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format).With(zap.String("run_id", uuid.NewString()))
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := loadActions(ctx, store, cfg.ActionsFile)
	if err != nil {
		return err
	}
	if list {
		for _, a := range saved {
			fmt.Println(a.Name)
		}
		return nil
	}

	action, ok := findAction(saved, actionName)
	if !ok {
		return fmt.Errorf("action %q not found (see -list)", actionName)
	}

	preset := cfg.Creativity()
	if creativity != "" {
		if preset, err = actions.ParseCreativity(creativity); err != nil {
			return err
		}
	}
	action = actions.Effective(action, preset)

	input, err := readInput(ctx, os.Stdin)
	if err != nil {
		return err
	}
	text := strings.TrimRight(input, "\n")

	primary, err := provider.New(cfg.Primary())
	if err != nil {
		return err
	}
	var secondary provider.Client
	if fb, ok := cfg.Fallback(); ok {
		if secondary, err = provider.New(fb); err != nil {
			return err
		}
	}

	if documentPath != "" {
		text = enhance(ctx, logger, cfg, store, primary, documentPath, text)
	}

	out := &lineWriter{w: os.Stdout}
	orch := orchestrator.New(primary, secondary,
		orchestrator.WithFallbackHook(func(from, to types.ProviderConfig, cause error) {
			out.reset()
			fmt.Fprintf(os.Stderr, "%s unreachable, retrying with %s\n", from.Kind.Label(), to.Kind.Label())
		}),
	)

	_, err = orch.Run(ctx, text, action, out.update)
	if errors.Is(err, types.ErrProviderUnreachable) {
		return fmt.Errorf("provider unreachable, check provider URL/server: %w", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

// readInput reads r to EOF. It returns types.ErrCancelled as soon as ctx is
// done, leaving the reading goroutine blocked on r until the process exits.
func readInput(ctx context.Context, r io.Reader) (string, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(r)
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return "", types.ErrCancelled
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", res.err)
		}
		return string(res.data), nil
	}
}

func openStore(path string) (*storage.SQLiteStorage, error) {
	if path == "" {
		return storage.NewSQLiteStorage(":memory:")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.NewSQLiteStorage(path)
}

// loadActions returns the saved actions, falling back to the actions file or
// the built-ins when nothing has been saved yet
func loadActions(ctx context.Context, store *storage.SQLiteStorage, file string) ([]types.Action, error) {
	saved, err := store.ListActions(ctx)
	if err != nil || len(saved) > 0 {
		return saved, err
	}
	if file != "" {
		return actions.LoadFile(file)
	}
	return actions.Defaults(), nil
}

func findAction(list []types.Action, name string) (types.Action, bool) {
	for _, a := range list {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return types.Action{}, false
}

// enhance prepends the document passages most relevant to text. Failures only
// cost the context, never the run.
func enhance(ctx context.Context, logger *zap.Logger, cfg *config.Config, store *storage.SQLiteStorage, client provider.Client, path, text string) string {
	doc, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read document", zap.String("path", path), zap.Error(err))
		return text
	}

	emb := embedder.New(embedder.NewCache(cfg.Cache.Size), embedder.WithStore(store))
	if key := cfg.EmbeddingModelKey(); key != "" {
		if err := emb.Activate(ctx, key); err != nil {
			logger.Warn("failed to prune stale embeddings", zap.Error(err))
		}
	}
	retriever := searcher.New(emb, chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap), searcher.Options{
		TopK:        cfg.Retrieval.TopK,
		Concurrency: cfg.Retrieval.Concurrency,
	})

	passages, err := retriever.Retrieve(ctx, string(doc), text, client)
	if err != nil {
		logger.Warn("retrieval failed, running without context", zap.Error(err))
		return text
	}
	logger.Debug("retrieved context", zap.Int("passages", len(passages)))
	return actions.Compose(text, passages)
}

// lineWriter prints the growing result, writing only what each update adds
type lineWriter struct {
	w       io.Writer
	printed string
}

func (l *lineWriter) update(text string) {
	if !strings.HasPrefix(text, l.printed) {
		// the provider rewrote earlier output; start over on a fresh line
		fmt.Fprintln(l.w)
		l.printed = ""
	}
	fmt.Fprint(l.w, text[len(l.printed):])
	l.printed = text
}

func (l *lineWriter) reset() {
	if l.printed != "" {
		fmt.Fprintln(l.w)
	}
	l.printed = ""
}
