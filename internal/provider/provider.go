package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// ErrMissingURL is returned when a provider config has no base URL
var ErrMissingURL = errors.New("provider URL cannot be empty")

// Client talks to one model server
type Client interface {
	// Process runs an action over text, reporting the accumulated output to
	// onUpdate as it streams in, and returns the final text
	Process(ctx context.Context, text string, action types.Action, onUpdate func(string)) (string, error)

	// Models lists the server's models as identifier -> display label
	Models(ctx context.Context) (map[string]string, error)

	// Embed returns the embedding vector of text under model
	Embed(ctx context.Context, text, model string) ([]float32, error)

	// Config returns the configuration the client was built from
	Config() types.ProviderConfig
}

// Option configures a client
type Option func(*settings)

type settings struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func applyOptions(opts []Option) settings {
	s := settings{
		// No overall timeout: a generation may legitimately stream for minutes.
		// Requests are bounded by their context instead.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// New creates the client matching cfg.Kind
func New(cfg types.ProviderConfig, opts ...Option) (Client, error) {
	dialect, err := cfg.Kind.Dialect()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingURL, cfg.Kind)
	}

	switch dialect {
	case types.DialectOllama:
		return NewOllama(cfg, opts...), nil
	case types.DialectOpenAI:
		return NewOpenAI(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownProvider, string(cfg.Kind))
	}
}
