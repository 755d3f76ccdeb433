package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/baykov477/obsidian-local-gpt/internal/actions"
	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// EnvPrefix is prepended to every environment override: LOCALGPT_DEFAULTS_PROVIDER
const EnvPrefix = "LOCALGPT"

// Config is the runner's settings
type Config struct {
	Defaults    DefaultsConfig              `mapstructure:"defaults"`
	Providers   map[string]ProviderSettings `mapstructure:"providers"`
	Retrieval   RetrievalConfig             `mapstructure:"retrieval"`
	Cache       CacheConfig                 `mapstructure:"cache"`
	Storage     StorageConfig               `mapstructure:"storage"`
	ActionsFile string                      `mapstructure:"actions_file"`
	Log         LogConfig                   `mapstructure:"log"`
	Metrics     MetricsConfig               `mapstructure:"metrics"`
}

type DefaultsConfig struct {
	Provider         string `mapstructure:"provider"`
	FallbackProvider string `mapstructure:"fallback_provider"` // empty disables fallback
	Creativity       string `mapstructure:"creativity"`        // "", low, medium, high
}

type ProviderSettings struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	DefaultModel   string `mapstructure:"default_model"`
	EmbeddingModel string `mapstructure:"embedding_model"` // empty disables retrieval
}

type RetrievalConfig struct {
	TopK         int `mapstructure:"top_k"`
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	Concurrency  int `mapstructure:"concurrency"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"` // in-memory embedding entries
}

type StorageConfig struct {
	Path string `mapstructure:"path"` // empty keeps embeddings in memory only
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // e.g. ":9090"; empty disables the listener
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.provider", string(types.KindOllama))
	v.SetDefault("defaults.fallback_provider", "")
	v.SetDefault("defaults.creativity", "")

	urls := map[types.ProviderKind]string{
		types.KindOllama:           "http://localhost:11434",
		types.KindOpenAICompatible: "http://localhost:8080",
	}
	// Every key must be known to viper for its env override to apply
	for _, kind := range types.AllKinds {
		prefix := "providers." + string(kind) + "."
		v.SetDefault(prefix+"url", urls[kind])
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"default_model", "")
		v.SetDefault(prefix+"embedding_model", "")
	}

	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.chunk_size", 1000)
	v.SetDefault("retrieval.chunk_overlap", 0)
	v.SetDefault("retrieval.concurrency", 4)
	v.SetDefault("cache.size", 10000)
	v.SetDefault("storage.path", "~/.localgpt/localgpt.db")
	v.SetDefault("actions_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics.addr", "")
}

// Load reads settings from path, or from localgpt.yaml in the working
// directory or ~/.localgpt when path is empty, then applies environment
// overrides. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	// silently ignore if .env doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("localgpt")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".localgpt"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.ActionsFile = expandHome(cfg.ActionsFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks the provider selection and numeric settings
func (c *Config) Validate() error {
	primary := types.ProviderKind(c.Defaults.Provider)
	if _, err := primary.Dialect(); err != nil {
		return fmt.Errorf("defaults.provider: %w", err)
	}
	if c.Providers[string(primary)].URL == "" {
		return fmt.Errorf("providers.%s.url is required", primary)
	}

	if c.Defaults.FallbackProvider != "" {
		fallback := types.ProviderKind(c.Defaults.FallbackProvider)
		if _, err := fallback.Dialect(); err != nil {
			return fmt.Errorf("defaults.fallback_provider: %w", err)
		}
		if fallback == primary {
			return fmt.Errorf("defaults.fallback_provider must differ from defaults.provider")
		}
		if c.Providers[string(fallback)].URL == "" {
			return fmt.Errorf("providers.%s.url is required", fallback)
		}
	}

	if _, err := actions.ParseCreativity(c.Defaults.Creativity); err != nil {
		return fmt.Errorf("defaults.creativity: %w", err)
	}

	if c.Retrieval.TopK < 0 || c.Retrieval.ChunkSize < 0 || c.Retrieval.ChunkOverlap < 0 || c.Retrieval.Concurrency < 0 {
		return fmt.Errorf("retrieval settings cannot be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size cannot be negative")
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Provider returns the settings of one provider kind
func (c *Config) Provider(kind types.ProviderKind) types.ProviderConfig {
	p := c.Providers[string(kind)]
	return types.ProviderConfig{
		Kind:           kind,
		BaseURL:        p.URL,
		APIKey:         p.APIKey,
		DefaultModel:   p.DefaultModel,
		EmbeddingModel: p.EmbeddingModel,
	}
}

// Primary returns the provider actions run on first
func (c *Config) Primary() types.ProviderConfig {
	return c.Provider(types.ProviderKind(c.Defaults.Provider))
}

// Fallback returns the provider used when the primary is unreachable.
// ok is false when fallback is disabled.
func (c *Config) Fallback() (cfg types.ProviderConfig, ok bool) {
	if c.Defaults.FallbackProvider == "" {
		return types.ProviderConfig{}, false
	}
	return c.Provider(types.ProviderKind(c.Defaults.FallbackProvider)), true
}

// Creativity returns the default creativity preset
func (c *Config) Creativity() actions.Creativity {
	cr, _ := actions.ParseCreativity(c.Defaults.Creativity)
	return cr
}

// EmbeddingModelKey identifies the embedding model retrieval uses. Vectors
// cached under one key are never served under another.
func (c *Config) EmbeddingModelKey() string {
	return c.Primary().EmbeddingKey()
}
