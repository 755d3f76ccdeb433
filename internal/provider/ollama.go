package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/baykov477/obsidian-local-gpt/internal/stream"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// OllamaClient speaks the Ollama HTTP API
type OllamaClient struct {
	cfg        types.ProviderConfig
	baseURL    string
	httpClient *http.Client
}

// NewOllama creates a client for an Ollama server
func NewOllama(cfg types.ProviderConfig, opts ...Option) *OllamaClient {
	s := applyOptions(opts)
	return &OllamaClient{
		cfg:        cfg,
		baseURL:    normalizeBaseURL(cfg.BaseURL),
		httpClient: s.httpClient,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Details struct {
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *OllamaClient) Config() types.ProviderConfig {
	return c.cfg
}

// Process streams POST /api/generate
func (c *OllamaClient) Process(ctx context.Context, text string, action types.Action, onUpdate func(string)) (string, error) {
	req := ollamaGenerateRequest{
		Model:  action.ModelOr(c.cfg.DefaultModel),
		Prompt: action.UserContent(text),
		System: action.System,
		Stream: true,
	}
	if action.Temperature != nil {
		req.Options = map[string]any{"temperature": *action.Temperature}
	}

	resp, err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/generate", req, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return stream.Drain(ctx, stream.NewDecoder(resp.Body, stream.NDJSON), onUpdate)
}

// Models lists GET /api/tags
func (c *OllamaClient) Models(ctx context.Context) (map[string]string, error) {
	resp, err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/tags", nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decode model list: %v", types.ErrProviderUnreachable, err)
	}

	models := make(map[string]string, len(tags.Models))
	for _, m := range tags.Models {
		label := m.Name
		if m.Details.ParameterSize != "" {
			label = fmt.Sprintf("%s (%s)", m.Name, m.Details.ParameterSize)
		}
		models[m.Name] = label
	}
	return models, nil
}

// Embed calls POST /api/embeddings, one text per call
func (c *OllamaClient) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if text == "" {
		return nil, types.ErrEmptyText
	}
	if model == "" {
		model = c.cfg.EmbeddingModel
	}
	if model == "" {
		return nil, types.ErrNoEmbeddingModel
	}

	resp, err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/embeddings",
		ollamaEmbedRequest{Model: model, Prompt: text}, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", types.ErrEmbeddingUnavailable, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty vector from %s", types.ErrEmbeddingUnavailable, model)
	}
	return out.Embedding, nil
}
