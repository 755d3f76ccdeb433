package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/baykov477/obsidian-local-gpt/internal/actions"
	"github.com/baykov477/obsidian-local-gpt/internal/chunker"
	"github.com/baykov477/obsidian-local-gpt/internal/config"
	"github.com/baykov477/obsidian-local-gpt/internal/embedder"
	"github.com/baykov477/obsidian-local-gpt/internal/indexer"
	"github.com/baykov477/obsidian-local-gpt/internal/metrics"
	"github.com/baykov477/obsidian-local-gpt/internal/orchestrator"
	"github.com/baykov477/obsidian-local-gpt/internal/provider"
	"github.com/baykov477/obsidian-local-gpt/internal/searcher"
	"github.com/baykov477/obsidian-local-gpt/internal/storage"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "localgpt-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	cfg          *config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	httpClient   *http.Client
	storage      storage.Storage
	embedder     *embedder.Embedder
	retriever    *searcher.Retriever
	indexer      *indexer.Indexer
	orchestrator *orchestrator.Orchestrator
}

// Option configures a Server
type Option func(*Server)

// WithHTTPClient sets the HTTP client used for every provider
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		s.httpClient = c
	}
}

// NewServer creates a new MCP server instance. An empty cfg.Storage.Path
// keeps actions and embeddings in memory for the life of the process.
func NewServer(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
	for _, opt := range opts {
		opt(s)
	}

	store, err := openStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	s.storage = store

	if err := s.seedActions(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to seed actions: %w", err)
	}

	primary, err := s.newClient(cfg.Primary())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	var secondary provider.Client
	if fb, ok := cfg.Fallback(); ok {
		if secondary, err = s.newClient(fb); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create fallback provider: %w", err)
		}
	}

	// One embedder shared by retrieval and warming so both fill the same cache
	s.embedder = embedder.New(
		embedder.NewCache(cfg.Cache.Size),
		embedder.WithStore(store),
		embedder.WithMetrics(m),
	)
	if key := cfg.EmbeddingModelKey(); key != "" {
		if err := s.embedder.Activate(context.Background(), key); err != nil {
			logger.Warn("failed to prune stale embeddings", zap.Error(err))
		}
	}

	ch := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	s.retriever = searcher.New(s.embedder, ch, searcher.Options{
		TopK:        cfg.Retrieval.TopK,
		Concurrency: cfg.Retrieval.Concurrency,
	})
	s.indexer = indexer.New(s.embedder, ch)

	s.orchestrator = orchestrator.New(primary, secondary,
		orchestrator.WithMetrics(m),
		orchestrator.WithFallbackHook(func(from, to types.ProviderConfig, cause error) {
			logger.Warn("primary provider unreachable, falling back",
				zap.String("from", string(from.Kind)),
				zap.String("to", string(to.Kind)),
				zap.Error(cause))
		}),
	)

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()

	return s, nil
}

func openStorage(path string) (*storage.SQLiteStorage, error) {
	if path == "" {
		return storage.NewSQLiteStorage(":memory:")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.NewSQLiteStorage(path)
}

// seedActions fills an empty action list from the actions file, or the
// built-in defaults when none is configured
func (s *Server) seedActions(ctx context.Context) error {
	existing, err := s.storage.ListActions(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	seed, err := s.defaultActions()
	if err != nil {
		return err
	}
	s.logger.Info("seeding actions", zap.Int("count", len(seed)))
	return s.storage.ReplaceActions(ctx, seed)
}

func (s *Server) defaultActions() ([]types.Action, error) {
	if s.cfg.ActionsFile == "" {
		return actions.Defaults(), nil
	}
	return actions.LoadFile(s.cfg.ActionsFile)
}

func (s *Server) newClient(cfg types.ProviderConfig) (provider.Client, error) {
	var opts []provider.Option
	if s.httpClient != nil {
		opts = append(opts, provider.WithHTTPClient(s.httpClient))
	}
	return provider.New(cfg, opts...)
}

// Serve runs the MCP protocol over the given streams until ctx is done or
// the input is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, in, out)
}

// Close releases the database
func (s *Server) Close() error {
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(runActionTool(), s.handleRunAction)
	s.mcp.AddTool(listActionsTool(), s.handleListActions)
	s.mcp.AddTool(saveActionTool(), s.handleSaveAction)
	s.mcp.AddTool(deleteActionTool(), s.handleDeleteAction)
	s.mcp.AddTool(moveActionTool(), s.handleMoveAction)
	s.mcp.AddTool(resetActionsTool(), s.handleResetActions)
	s.mcp.AddTool(listModelsTool(), s.handleListModels)
	s.mcp.AddTool(clearEmbeddingsCacheTool(), s.handleClearEmbeddingsCache)
	s.mcp.AddTool(warmCacheTool(), s.handleWarmCache)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
