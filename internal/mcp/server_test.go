package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/baykov477/obsidian-local-gpt/internal/actions"
	"github.com/baykov477/obsidian-local-gpt/internal/config"
	"github.com/baykov477/obsidian-local-gpt/internal/metrics"
)

// fakeOllama serves the subset of the Ollama API the server uses
type fakeOllama struct {
	*httptest.Server

	mu         sync.Mutex
	prompts    []string
	embedCalls int
}

func newFakeOllama(t *testing.T) *fakeOllama {
	f := &fakeOllama{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		if req.Model == "missing" {
			fmt.Fprintln(w, `{"error":"model 'missing' not found"}`)
			return
		}
		fmt.Fprintln(w, `{"response":"Hel","done":false}`)
		fmt.Fprintln(w, `{"response":"lo","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"mistral","details":{}},{"name":"llama3","details":{"parameter_size":"8B"}}]}`)
	})
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.embedCalls++
		f.mu.Unlock()
		vec := []float32{float32(len(req.Prompt)), float32(strings.Count(req.Prompt, "a") + 1)}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vec})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func testConfig(url string) *config.Config {
	return &config.Config{
		Defaults: config.DefaultsConfig{Provider: "ollama"},
		Providers: map[string]config.ProviderSettings{
			"ollama": {URL: url, DefaultModel: "llama3", EmbeddingModel: "nomic-embed-text"},
		},
		Retrieval: config.RetrievalConfig{TopK: 2, ChunkSize: 50, Concurrency: 2},
		Cache:     config.CacheConfig{Size: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := NewServer(cfg, zap.NewNop(), metrics.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func request(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func assertMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "want *MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func actionNames(t *testing.T, res *mcp.CallToolResult) []string {
	t.Helper()
	list := decodeResult(t, res)["actions"].([]interface{})
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.(map[string]interface{})["name"].(string)
	}
	return names
}

func TestNewServer_SeedsDefaultActions(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1"))

	res, err := s.handleListActions(context.Background(), request(nil))
	require.NoError(t, err)

	var want []string
	for _, a := range actions.Defaults() {
		want = append(want, a.Name)
	}
	assert.Equal(t, want, actionNames(t, res))

	first := decodeResult(t, res)["actions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, actions.Format(actions.Defaults()[0]), first["share"])
}

func TestNewServer_SeedsFromActionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actions:\n  - name: Only\n    prompt: Do it\n"), 0o644))

	cfg := testConfig("http://127.0.0.1:1")
	cfg.ActionsFile = path
	s := newTestServer(t, cfg)

	res, err := s.handleListActions(context.Background(), request(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Only"}, actionNames(t, res))
}

func TestNewServer_KeepsSavedActions(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Storage.Path = filepath.Join(t.TempDir(), "db", "localgpt.db")

	first, err := NewServer(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	_, err = first.handleSaveAction(context.Background(), request(map[string]interface{}{
		"share": "Name: Mine ✂️ Prompt: Custom",
	}))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestServer(t, cfg)
	res, err := second.handleListActions(context.Background(), request(nil))
	require.NoError(t, err)
	names := actionNames(t, res)
	assert.Equal(t, "Mine", names[0])
	assert.Len(t, names, len(actions.Defaults())+1, "defaults are not seeded twice")
}

func TestRunAction(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))
	ctx := context.Background()

	_, err := s.handleSaveAction(ctx, request(map[string]interface{}{
		"share": "Name: Echo ✂️ Prompt: Repeat after me",
	}))
	require.NoError(t, err)

	res, err := s.handleRunAction(ctx, request(map[string]interface{}{
		"action": "Echo",
		"text":   "hi",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Hello", resultText(t, res))
	assert.Equal(t, "Repeat after me\n\nhi", fake.lastPrompt())
}

func TestRunAction_Enhanced(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))
	ctx := context.Background()

	_, err := s.handleSaveAction(ctx, request(map[string]interface{}{"share": "Name: Ask"}))
	require.NoError(t, err)

	res, err := s.handleRunAction(ctx, request(map[string]interface{}{
		"action":   "Ask",
		"text":     "what about apples?",
		"document": "alpha apples\n\nbravo\n\ncharlie",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Hello", resultText(t, res))

	prompt := fake.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "Context:\n"), prompt)
	assert.True(t, strings.HasSuffix(prompt, "---\n\nwhat about apples?"), prompt)

	// enhanced=false skips retrieval
	_, err = s.handleRunAction(ctx, request(map[string]interface{}{
		"action":   "Ask",
		"text":     "plain",
		"document": "alpha apples",
		"enhanced": false,
	}))
	require.NoError(t, err)
	assert.Equal(t, "plain", fake.lastPrompt())
}

func TestRunAction_Errors(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))
	ctx := context.Background()

	_, err := s.handleRunAction(ctx, request(map[string]interface{}{"text": "x"}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleRunAction(ctx, request(map[string]interface{}{"action": "Nope"}))
	assertMCPError(t, err, ErrorCodeActionNotFound)

	_, err = s.handleRunAction(ctx, request(map[string]interface{}{
		"action":     actions.Defaults()[0].Name,
		"creativity": "wild",
	}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	t.Run("server error in stream", func(t *testing.T) {
		_, err := s.handleSaveAction(ctx, request(map[string]interface{}{
			"share": "Name: Broken ✂️ Model: missing",
		}))
		require.NoError(t, err)

		res, err := s.handleRunAction(ctx, request(map[string]interface{}{"action": "Broken", "text": "x"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, "model 'missing' not found", resultText(t, res))
	})
}

func TestRunAction_Unreachable(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1"))

	res, err := s.handleRunAction(context.Background(), request(map[string]interface{}{
		"action": actions.Defaults()[0].Name,
		"text":   "x",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "check provider URL/server")
}

func TestRunAction_FallsBack(t *testing.T) {
	fake := newFakeOllama(t)
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Defaults.FallbackProvider = "ollama_fallback"
	cfg.Providers["ollama_fallback"] = config.ProviderSettings{URL: fake.URL, DefaultModel: "llama3"}
	m := metrics.New()
	s, err := NewServer(cfg, zap.NewNop(), m)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.handleRunAction(context.Background(), request(map[string]interface{}{
		"action": actions.Defaults()[0].Name,
		"text":   "x",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Hello", resultText(t, res))
}

func TestRunAction_Cancelled(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.handleRunAction(ctx, request(map[string]interface{}{
		"action": actions.Defaults()[0].Name,
		"text":   "x",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "cancelled", resultText(t, res))
}

// fakeSession captures notifications sent to the client
type fakeSession struct {
	ch chan mcp.JSONRPCNotification
}

func (f *fakeSession) Initialize()       {}
func (f *fakeSession) Initialized() bool { return true }
func (f *fakeSession) SessionID() string { return "test-session" }
func (f *fakeSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return f.ch
}

func TestRunAction_Progress(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))

	session := &fakeSession{ch: make(chan mcp.JSONRPCNotification, 16)}
	ctx := s.mcp.WithContext(context.Background(), session)

	req := request(map[string]interface{}{
		"action": actions.Defaults()[0].Name,
		"text":   "x",
	})
	req.Params.Meta = &mcp.Meta{ProgressToken: "tok-1"}

	res, err := s.handleRunAction(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resultText(t, res))

	close(session.ch)
	var messages []interface{}
	for n := range session.ch {
		assert.Equal(t, "notifications/progress", n.Method)
		assert.Equal(t, "tok-1", n.Params.AdditionalFields["progressToken"])
		messages = append(messages, n.Params.AdditionalFields["message"])
	}
	assert.Equal(t, []interface{}{"Hel", "Hello"}, messages)
}

func TestSaveAction(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1"))
	ctx := context.Background()

	res, err := s.handleSaveAction(ctx, request(map[string]interface{}{
		"share": "Name: Shout ✂️ Prompt: Uppercase ✂️ Replace: true",
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"action": "Shout", "created": true}, decodeResult(t, res))

	res, err = s.handleSaveAction(ctx, request(map[string]interface{}{
		"share": "Name: Shout ✂️ Prompt: Louder",
	}))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, res)["created"])

	_, err = s.handleSaveAction(ctx, request(map[string]interface{}{"share": "Prompt: nameless"}))
	assertMCPError(t, err, ErrorCodeInvalidParams)
}

func TestDeleteMoveResetActions(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1"))
	ctx := context.Background()
	defaults := actions.Defaults()

	_, err := s.handleDeleteAction(ctx, request(map[string]interface{}{"action": defaults[0].Name}))
	require.NoError(t, err)
	_, err = s.handleDeleteAction(ctx, request(map[string]interface{}{"action": defaults[0].Name}))
	assertMCPError(t, err, ErrorCodeActionNotFound)

	res, err := s.handleMoveAction(ctx, request(map[string]interface{}{
		"action": defaults[1].Name,
		"delta":  float64(1),
	}))
	require.NoError(t, err)
	names := actionNames(t, res)
	assert.Equal(t, []string{defaults[2].Name, defaults[1].Name}, names[:2])

	_, err = s.handleMoveAction(ctx, request(map[string]interface{}{"action": defaults[1].Name}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleResetActions(ctx, request(map[string]interface{}{}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	res, err = s.handleResetActions(ctx, request(map[string]interface{}{"confirm": true}))
	require.NoError(t, err)
	assert.Len(t, actionNames(t, res), len(defaults))
	assert.Equal(t, defaults[0].Name, actionNames(t, res)[0])
}

func TestListModels(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))
	ctx := context.Background()

	res, err := s.handleListModels(ctx, request(nil))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "ollama", out["provider"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"id": "llama3", "label": "llama3 (8B)"},
		map[string]interface{}{"id": "mistral", "label": "mistral"},
	}, out["models"])

	_, err = s.handleListModels(ctx, request(map[string]interface{}{"provider": "claude"}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleListModels(ctx, request(map[string]interface{}{"provider": "openai_compatible_fallback"}))
	assertMCPError(t, err, ErrorCodeProviderNotDefined)
}

func TestListModels_Unreachable(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1"))

	res, err := s.handleListModels(context.Background(), request(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "check provider URL/server")
}

func TestWarmAndClearCache(t *testing.T) {
	fake := newFakeOllama(t)
	s := newTestServer(t, testConfig(fake.URL))
	ctx := context.Background()

	vault := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(vault, "a.md"), []byte("apples and bananas"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vault, "b.txt"), []byte("cherries"), 0o644))

	res, err := s.handleWarmCache(ctx, request(map[string]interface{}{"path": vault}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(2), out["files_warmed"])
	assert.Equal(t, float64(2), out["passages_embedded"])

	status := decodeResult(t, mustStatus(t, s))
	embeddings := status["embeddings"].(map[string]interface{})
	assert.Equal(t, float64(2), embeddings["memory_entries"])
	assert.Equal(t, float64(2), embeddings["stored_entries"])
	assert.Equal(t, "ollama/nomic-embed-text", embeddings["model_key"])

	_, err = s.handleClearEmbeddingsCache(ctx, request(nil))
	require.NoError(t, err)

	status = decodeResult(t, mustStatus(t, s))
	embeddings = status["embeddings"].(map[string]interface{})
	assert.Equal(t, float64(0), embeddings["memory_entries"])
	assert.Equal(t, float64(0), embeddings["stored_entries"])
}

func TestWarmCache_Errors(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1"))
	ctx := context.Background()

	_, err := s.handleWarmCache(ctx, request(map[string]interface{}{}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleWarmCache(ctx, request(map[string]interface{}{"path": "relative/dir"}))
	assertMCPError(t, err, ErrorCodeInvalidParams)

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Providers["ollama"] = config.ProviderSettings{URL: "http://127.0.0.1:1"}
	noEmbed := newTestServer(t, cfg)
	_, err = noEmbed.handleWarmCache(ctx, request(map[string]interface{}{"path": t.TempDir()}))
	assertMCPError(t, err, ErrorCodeNoEmbeddingModel)
}

func mustStatus(t *testing.T, s *Server) *mcp.CallToolResult {
	t.Helper()
	res, err := s.handleGetStatus(context.Background(), request(nil))
	require.NoError(t, err)
	return res
}

func TestGetStatus(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Defaults.FallbackProvider = "openai_compatible"
	cfg.Providers["openai_compatible"] = config.ProviderSettings{URL: "http://localhost:8080", APIKey: "sk-secret"}
	s := newTestServer(t, cfg)

	res := mustStatus(t, s)
	assert.NotContains(t, resultText(t, res), "sk-secret")

	status := decodeResult(t, res)
	assert.Equal(t, ServerVersion, status["version"])
	assert.Equal(t, float64(len(actions.Defaults())), status["actions_count"])

	providers := status["providers"].(map[string]interface{})
	assert.Equal(t, "ollama", providers["primary"].(map[string]interface{})["kind"])
	assert.Equal(t, "openai_compatible", providers["fallback"].(map[string]interface{})["kind"])

	db := status["database"].(map[string]interface{})
	assert.NotEmpty(t, db["schema_version"])
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, validatePath(dir))
	assert.ErrorIs(t, validatePath(""), ErrPathRequired)
	assert.ErrorIs(t, validatePath("rel"), ErrPathNotAbsolute)
	assert.ErrorIs(t, validatePath(filepath.Join(dir, "missing")), ErrPathNotFound)
	assert.ErrorIs(t, validatePath(file), ErrNotDirectory)
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeActionNotFound, "action not found", nil)
	assert.Equal(t, "MCP error -32001: action not found", err.Error())
}
