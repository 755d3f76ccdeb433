package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/baykov477/obsidian-local-gpt/internal/stream"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// OpenAIClient speaks the OpenAI-compatible HTTP API.
// Chat completions are streamed through our own decoder so that servers which
// answer with a bare error envelope are reported faithfully; the model catalog
// and embeddings go through go-openai.
type OpenAIClient struct {
	cfg        types.ProviderConfig
	baseURL    string
	httpClient *http.Client
	api        *openai.Client
}

// NewOpenAI creates a client for an OpenAI-compatible server
func NewOpenAI(cfg types.ProviderConfig, opts ...Option) *OpenAIClient {
	s := applyOptions(opts)
	base := normalizeBaseURL(cfg.BaseURL)

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	apiConfig.BaseURL = base + "/v1"
	apiConfig.HTTPClient = s.httpClient

	return &OpenAIClient{
		cfg:        cfg,
		baseURL:    base,
		httpClient: s.httpClient,
		api:        openai.NewClientWithConfig(apiConfig),
	}
}

type chatRequest struct {
	Model       string                         `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Stream      bool                           `json:"stream"`
	Temperature *float64                       `json:"temperature,omitempty"`
}

func (c *OpenAIClient) Config() types.ProviderConfig {
	return c.cfg
}

func (c *OpenAIClient) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return h
}

// Process streams POST /v1/chat/completions
func (c *OpenAIClient) Process(ctx context.Context, text string, action types.Action, onUpdate func(string)) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if action.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: action.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: action.UserContent(text),
	})

	req := chatRequest{
		Model:       action.ModelOr(c.cfg.DefaultModel),
		Messages:    messages,
		Stream:      true,
		Temperature: action.Temperature,
	}

	resp, err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/chat/completions", req, c.header())
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return stream.Drain(ctx, stream.NewDecoder(resp.Body, stream.EventStream), onUpdate)
}

// Models lists GET /v1/models
func (c *OpenAIClient) Models(ctx context.Context) (map[string]string, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, c.apiError(ctx, err, types.ErrProviderUnreachable)
	}

	models := make(map[string]string, len(list.Models))
	for _, m := range list.Models {
		models[m.ID] = m.ID
	}
	return models, nil
}

// Embed calls POST /v1/embeddings
func (c *OpenAIClient) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if text == "" {
		return nil, types.ErrEmptyText
	}
	if model == "" {
		model = c.cfg.EmbeddingModel
	}
	if model == "" {
		return nil, types.ErrNoEmbeddingModel
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, c.apiError(ctx, err, types.ErrEmbeddingUnavailable)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty vector from %s", types.ErrEmbeddingUnavailable, model)
	}
	return resp.Data[0].Embedding, nil
}

// apiError maps go-openai failures onto the shared taxonomy. An HTTP-level
// error response is reported under httpSentinel; anything that never got a
// response is treated as an unreachable provider.
func (c *OpenAIClient) apiError(ctx context.Context, err error, httpSentinel error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return types.ErrCancelled
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %d: %s", httpSentinel, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %d: %v", httpSentinel, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%w: %v", types.ErrProviderUnreachable, err)
}
