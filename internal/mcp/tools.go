package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/baykov477/obsidian-local-gpt/internal/actions"
	"github.com/baykov477/obsidian-local-gpt/internal/indexer"
	"github.com/baykov477/obsidian-local-gpt/internal/storage"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeActionNotFound     = -32001 // No saved action with that name
	ErrorCodeWarmInProgress     = -32002 // Another warm_cache is already running
	ErrorCodeNoEmbeddingModel   = -32003 // Provider has no embedding model configured
	ErrorCodeProviderNotDefined = -32004 // Provider kind has no URL configured
)

const (
	cancelledText   = "cancelled"
	unreachableHint = "Provider unreachable, check provider URL/server"
)

// handleRunAction handles the run_action tool invocation
func (s *Server) handleRunAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	name := getStringDefault(args, "action", "")
	if name == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "action parameter is required", map[string]interface{}{
			"param":  "action",
			"reason": "missing or empty",
		})
	}
	text := getStringDefault(args, "text", "")
	document := getStringDefault(args, "document", "")
	enhanced := getBoolDefault(args, "enhanced", document != "")

	creativity := s.cfg.Creativity()
	if raw, ok := args["creativity"].(string); ok {
		if creativity, err = actions.ParseCreativity(raw); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid creativity", map[string]interface{}{
				"param":   "creativity",
				"value":   raw,
				"allowed": []string{"", "low", "medium", "high"},
			})
		}
	}

	action, err := s.storage.GetAction(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeActionNotFound, "action not found", map[string]interface{}{
			"action": name,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load action", map[string]interface{}{
			"error": err.Error(),
		})
	}
	action = actions.Effective(action, creativity)

	log := s.logger.With(zap.String("run_id", uuid.NewString()), zap.String("action", name))

	input := text
	if enhanced && document != "" {
		passages, err := s.retriever.Retrieve(ctx, document, text, s.orchestrator.Primary())
		switch {
		case errors.Is(err, types.ErrCancelled):
			log.Info("run cancelled during retrieval")
			return mcp.NewToolResultText(cancelledText), nil
		case err != nil:
			// Enhancement is optional; the action still runs on the bare text
			log.Warn("retrieval failed, running without context", zap.Error(err))
		default:
			log.Debug("retrieved context", zap.Int("passages", len(passages)))
			input = actions.Compose(text, passages)
		}
	}

	report := s.progressReporter(ctx, request)
	start := time.Now()
	result, err := s.orchestrator.Run(ctx, input, action, func(update string) {
		report(update, 0)
	})

	var protocolErr *types.StreamProtocolError
	switch {
	case err == nil:
		log.Info("run finished", zap.Duration("duration", time.Since(start)), zap.Int("chars", len(result)))
		return mcp.NewToolResultText(result), nil
	case errors.Is(err, types.ErrCancelled):
		log.Info("run cancelled")
		return mcp.NewToolResultText(cancelledText), nil
	case errors.Is(err, types.ErrProviderUnreachable):
		log.Warn("provider unreachable", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("%s (%v)", unreachableHint, err)), nil
	case errors.As(err, &protocolErr):
		log.Warn("provider returned an error", zap.Error(err))
		return mcp.NewToolResultError(protocolErr.Message), nil
	default:
		log.Error("run failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
}

// actionView is an action as list_actions reports it
type actionView struct {
	types.Action
	Share string `json:"share"`
}

// handleListActions handles the list_actions tool invocation
func (s *Server) handleListActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.storage.ListActions(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list actions", map[string]interface{}{
			"error": err.Error(),
		})
	}

	views := make([]actionView, len(list))
	for i, a := range list {
		views[i] = actionView{Action: a, Share: actions.Format(a)}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"actions": views,
	})), nil
}

// handleSaveAction handles the save_action tool invocation
func (s *Server) handleSaveAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	share := getStringDefault(args, "share", "")
	action, err := actions.Parse(share)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid share string", map[string]interface{}{
			"param":  "share",
			"reason": err.Error(),
		})
	}

	created, err := s.storage.SaveAction(ctx, action)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to save action", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.logger.Info("action saved", zap.String("action", action.Name), zap.Bool("created", created))

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"action":  action.Name,
		"created": created,
	})), nil
}

// handleDeleteAction handles the delete_action tool invocation
func (s *Server) handleDeleteAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	name := getStringDefault(args, "action", "")
	if name == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "action parameter is required", map[string]interface{}{
			"param":  "action",
			"reason": "missing or empty",
		})
	}

	err = s.storage.DeleteAction(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeActionNotFound, "action not found", map[string]interface{}{
			"action": name,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to delete action", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted": name,
	})), nil
}

// handleMoveAction handles the move_action tool invocation
func (s *Server) handleMoveAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	name := getStringDefault(args, "action", "")
	if name == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "action parameter is required", map[string]interface{}{
			"param":  "action",
			"reason": "missing or empty",
		})
	}
	if _, ok := args["delta"]; !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "delta parameter is required", map[string]interface{}{
			"param":  "delta",
			"reason": "missing",
		})
	}
	delta := getIntDefault(args, "delta", 0)

	err = s.storage.MoveAction(ctx, name, delta)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeActionNotFound, "action not found", map[string]interface{}{
			"action": name,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to move action", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return s.handleListActions(ctx, request)
}

// handleResetActions handles the reset_actions tool invocation
func (s *Server) handleResetActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	if !getBoolDefault(args, "confirm", false) {
		return nil, newMCPError(ErrorCodeInvalidParams, "confirm must be true", map[string]interface{}{
			"param": "confirm",
		})
	}

	defaults, err := s.defaultActions()
	if err == nil {
		err = s.storage.ReplaceActions(ctx, defaults)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to reset actions", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.logger.Info("actions reset to defaults", zap.Int("count", len(defaults)))

	return s.handleListActions(ctx, request)
}

// handleListModels handles the list_models tool invocation
func (s *Server) handleListModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	kind := types.ProviderKind(getStringDefault(args, "provider", s.cfg.Defaults.Provider))
	if _, err := kind.Dialect(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "unknown provider", map[string]interface{}{
			"param": "provider",
			"value": string(kind),
		})
	}
	cfg := s.cfg.Provider(kind)
	if cfg.BaseURL == "" {
		return nil, newMCPError(ErrorCodeProviderNotDefined, "provider is not configured", map[string]interface{}{
			"provider": string(kind),
		})
	}

	client, err := s.newClient(cfg)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to create provider", map[string]interface{}{
			"error": err.Error(),
		})
	}

	models, err := client.Models(ctx)
	switch {
	case errors.Is(err, types.ErrCancelled):
		return mcp.NewToolResultText(cancelledText), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("%s (%v)", unreachableHint, err)), nil
	}

	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]map[string]string, len(ids))
	for i, id := range ids {
		list[i] = map[string]string{"id": id, "label": models[id]}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"provider": string(kind),
		"models":   list,
	})), nil
}

// handleClearEmbeddingsCache handles the clear_embeddings_cache tool invocation
func (s *Server) handleClearEmbeddingsCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.embedder.ClearAll(ctx); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to clear embeddings cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.logger.Info("embeddings cache cleared")

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": true,
	})), nil
}

// handleWarmCache handles the warm_cache tool invocation
func (s *Server) handleWarmCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	report := s.progressReporter(ctx, request)
	stats, err := s.indexer.Warm(ctx, path, s.orchestrator.Primary(), &indexer.Config{
		Workers: getIntDefault(args, "workers", 0),
		OnProgress: func(done, total int) {
			report(fmt.Sprintf("%d/%d notes", done, total), total)
		},
	})
	switch {
	case errors.Is(err, types.ErrCancelled):
		return mcp.NewToolResultText(cancelledText), nil
	case errors.Is(err, indexer.ErrWarmInProgress):
		return nil, newMCPError(ErrorCodeWarmInProgress, "a cache warm is already running", nil)
	case errors.Is(err, types.ErrNoEmbeddingModel):
		return nil, newMCPError(ErrorCodeNoEmbeddingModel, "the primary provider has no embedding model configured", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "warm failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.logger.Info("cache warmed",
		zap.String("path", path),
		zap.Int("files", stats.FilesWarmed),
		zap.Int("failed", stats.FilesFailed),
		zap.Duration("duration", stats.Duration))

	response := map[string]interface{}{
		"files_warmed":      stats.FilesWarmed,
		"files_skipped":     stats.FilesSkipped,
		"files_failed":      stats.FilesFailed,
		"passages_embedded": stats.PassagesEmbedded,
		"duration_ms":       stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	providers := map[string]interface{}{
		"primary": s.orchestrator.Primary().Config(),
	}
	if secondary := s.orchestrator.Secondary(); secondary != nil {
		providers["fallback"] = secondary.Config()
	}

	response := map[string]interface{}{
		"version":    ServerVersion,
		"providers":  providers,
		"creativity": string(s.cfg.Creativity()),
		"embeddings": map[string]interface{}{
			"model_key":        s.cfg.EmbeddingModelKey(),
			"memory_entries":   s.embedder.Cache().Len(),
			"stored_entries":   status.EmbeddingsCount,
			"stored_models":    status.EmbeddingModels,
			"warm_in_progress": s.indexer.Busy(),
		},
		"actions_count": status.ActionsCount,
		"database": map[string]interface{}{
			"build_mode":     status.BuildMode,
			"schema_version": status.SchemaVersion,
			"size_mb":        fmt.Sprintf("%.2f", status.SizeMB),
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// progressReporter returns a function that forwards messages to the client as
// progress notifications. Without a progress token in the request it does nothing.
func (s *Server) progressReporter(ctx context.Context, request mcp.CallToolRequest) func(message string, total int) {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return func(string, int) {}
	}
	token := request.Params.Meta.ProgressToken

	var mu sync.Mutex
	step := 0
	return func(message string, total int) {
		mu.Lock()
		defer mu.Unlock()
		step++

		params := map[string]any{
			"progressToken": token,
			"progress":      step,
			"message":       message,
		}
		if total > 0 {
			params["total"] = total
		}
		// Best effort: a slow or gone client must not stall the run
		if err := s.mcp.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
			s.logger.Debug("progress notification dropped", zap.Error(err))
		}
	}
}

// arguments returns the call's arguments; a call without any gets an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks the path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
