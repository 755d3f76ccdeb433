package storage

import (
	"context"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// Storage defines the interface for persisting embeddings and saved actions
type Storage interface {
	// Embedding operations
	UpsertEmbedding(ctx context.Context, hash, model string, vector []float32) error
	GetEmbedding(ctx context.Context, hash, model string) ([]float32, error)
	PruneEmbeddings(ctx context.Context, keepModel string) error
	ClearEmbeddings(ctx context.Context) error
	CountEmbeddings(ctx context.Context) (int, error)

	// Action operations
	SaveAction(ctx context.Context, action types.Action) (created bool, err error)
	GetAction(ctx context.Context, name string) (types.Action, error)
	ListActions(ctx context.Context) ([]types.Action, error)
	DeleteAction(ctx context.Context, name string) error
	MoveAction(ctx context.Context, name string, delta int) error
	ReplaceActions(ctx context.Context, actions []types.Action) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// Status contains statistics about the database
type Status struct {
	BuildMode       string
	SchemaVersion   string
	EmbeddingsCount int
	EmbeddingModels []string
	ActionsCount    int
	SizeMB          float64
}
