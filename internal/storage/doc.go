// Package storage provides SQLite-based persistence for the action runner.
//
// The storage layer manages:
//   - The persistent tier of the embedding cache
//   - Saved actions and their display order
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations (semver)
//   - embeddings: vectors keyed by (content_hash, model)
//   - actions: saved actions keyed by name, ordered by position
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.localgpt/localgpt.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Add or overwrite an action; new ones are listed first
//	created, err := db.SaveAction(ctx, types.Action{Name: "Summarize", Prompt: "Summarize:"})
//
//	// Persist an embedding
//	err = db.UpsertEmbedding(ctx, embedder.ComputeHash(text), "ollama/nomic-embed-text", vec)
//
// The model column holds the provider-qualified embedding model key, so a
// vector is only ever read back under the model that produced it.
// PruneEmbeddings drops every other model's vectors after a model switch.
//
// # Vector Storage
//
// Vectors are stored as little-endian float32 blobs, 4 bytes per dimension.
//
// # Build Modes
//
// Two SQLite drivers are supported:
//
//   - purego (default): modernc.org/sqlite, no C compiler needed
//   - cgo: github.com/mattn/go-sqlite3, built with -tags sqlite_vec
//
// The database runs in WAL mode with a single open connection, so all
// operations are serialized at the driver.
//
// # Migrations
//
// ApplyMigrations runs every migration newer than the recorded schema version
// on open. RollbackMigration reverts the most recent one.
package storage
