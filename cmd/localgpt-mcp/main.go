package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/baykov477/obsidian-local-gpt/internal/config"
	"github.com/baykov477/obsidian-local-gpt/internal/logging"
	"github.com/baykov477/obsidian-local-gpt/internal/mcp"
	"github.com/baykov477/obsidian-local-gpt/internal/metrics"
	"github.com/baykov477/obsidian-local-gpt/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	configPath := flag.String("config", "", "path to config file (default: ./localgpt.yaml or ~/.localgpt/localgpt.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("LocalGPT MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for the MCP protocol; logging writes to stderr
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = logger.Sync() }()

	logger.Info("LocalGPT MCP server starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("provider", cfg.Defaults.Provider),
		zap.String("fallback", cfg.Defaults.FallbackProvider))

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go serveMetrics(logger, cfg.Metrics.Addr, m)
	}

	server, err := mcp.NewServer(cfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to create MCP server", zap.Error(err))
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("MCP server ready, listening on stdio")
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}

func serveMetrics(logger *zap.Logger, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
