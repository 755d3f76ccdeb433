package types

import "fmt"

// ProviderKind is the closed set of provider configurations
type ProviderKind string

const (
	KindOllama                   ProviderKind = "ollama"
	KindOllamaFallback           ProviderKind = "ollama_fallback"
	KindOpenAICompatible         ProviderKind = "openai_compatible"
	KindOpenAICompatibleFallback ProviderKind = "openai_compatible_fallback"
)

// Dialect identifies the wire protocol a provider speaks
type Dialect string

const (
	DialectOllama Dialect = "ollama"
	DialectOpenAI Dialect = "openai"
)

// AllKinds lists every provider kind in display order
var AllKinds = []ProviderKind{
	KindOllama,
	KindOpenAICompatible,
	KindOllamaFallback,
	KindOpenAICompatibleFallback,
}

// Dialect maps a provider kind to its wire protocol
func (k ProviderKind) Dialect() (Dialect, error) {
	switch k {
	case KindOllama, KindOllamaFallback:
		return DialectOllama, nil
	case KindOpenAICompatible, KindOpenAICompatibleFallback:
		return DialectOpenAI, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, string(k))
	}
}

// IsFallback reports whether the kind is one of the secondary slots
func (k ProviderKind) IsFallback() bool {
	return k == KindOllamaFallback || k == KindOpenAICompatibleFallback
}

// Label returns a human-readable provider name
func (k ProviderKind) Label() string {
	switch k {
	case KindOllama:
		return "Ollama"
	case KindOllamaFallback:
		return "Ollama (fallback)"
	case KindOpenAICompatible:
		return "OpenAI compatible server"
	case KindOpenAICompatibleFallback:
		return "OpenAI compatible server (fallback)"
	default:
		return string(k)
	}
}

// ProviderConfig describes one model server.
// An empty EmbeddingModel disables retrieval augmentation for the provider.
type ProviderConfig struct {
	Kind           ProviderKind `json:"kind"`
	BaseURL        string       `json:"url"`
	APIKey         string       `json:"-"`
	DefaultModel   string       `json:"default_model"`
	EmbeddingModel string       `json:"embedding_model,omitempty"`
}

// EmbeddingKey identifies the active embedding model selection.
// Vectors produced under different keys are not comparable.
func (c ProviderConfig) EmbeddingKey() string {
	if c.EmbeddingModel == "" {
		return ""
	}
	return string(c.Kind) + "/" + c.EmbeddingModel
}
