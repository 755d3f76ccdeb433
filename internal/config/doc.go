// Package config loads the runner's settings with viper.
//
// Sources, lowest precedence first: built-in defaults, a YAML file
// (localgpt.yaml), a .env file, and LOCALGPT_* environment variables. Nested
// keys map to env names by replacing dots with underscores:
//
//	LOCALGPT_DEFAULTS_PROVIDER=openai_compatible
//	LOCALGPT_PROVIDERS_OPENAI_COMPATIBLE_API_KEY=sk-...
//
// A minimal file:
//
//	defaults:
//	  provider: ollama
//	  fallback_provider: openai_compatible
//	  creativity: low
//	providers:
//	  ollama:
//	    url: http://localhost:11434
//	    default_model: llama3
//	    embedding_model: nomic-embed-text
//	  openai_compatible:
//	    url: http://localhost:8080
//	    default_model: gpt-4o-mini
package config
