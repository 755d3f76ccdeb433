package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidVector is returned when storing an empty vector
	ErrInvalidVector = errors.New("vector cannot be empty")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// inTx runs fn inside a transaction, rolling back on error
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Embedding operations

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, hash, model string, vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	query := `
		INSERT INTO embeddings (content_hash, model, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, model) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query, hash, model, serializeVector(vector), len(vector), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, hash, model string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT vector FROM embeddings WHERE content_hash = ? AND model = ?", hash, model).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return deserializeVector(blob), nil
}

// PruneEmbeddings deletes every embedding not computed under keepModel
func (s *SQLiteStorage) PruneEmbeddings(ctx context.Context, keepModel string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE model <> ?", keepModel); err != nil {
		return fmt.Errorf("failed to prune embeddings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearEmbeddings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings"); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Action operations

// SaveAction adds an action or overwrites the one with the same name.
// New actions are placed first; overwritten ones keep their position.
func (s *SQLiteStorage) SaveAction(ctx context.Context, action types.Action) (bool, error) {
	if err := action.Validate(); err != nil {
		return false, err
	}

	var created bool
	err := s.inTx(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions WHERE name = ?", action.Name).Scan(&exists)
		if err != nil {
			return err
		}

		now := time.Now()
		if exists > 0 {
			_, err = q.ExecContext(ctx, `
				UPDATE actions
				SET prompt = ?, system = ?, model = ?, temperature = ?, replace_selection = ?, updated_at = ?
				WHERE name = ?
			`, action.Prompt, action.System, action.Model, nullFloat(action.Temperature), action.Replace, now, action.Name)
			if err != nil {
				return fmt.Errorf("failed to update action: %w", err)
			}
			return nil
		}

		if _, err := q.ExecContext(ctx, "UPDATE actions SET position = position + 1"); err != nil {
			return fmt.Errorf("failed to shift actions: %w", err)
		}
		if err := insertAction(ctx, q, action, 0, now); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func insertAction(ctx context.Context, q querier, action types.Action, position int, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO actions (name, position, prompt, system, model, temperature, replace_selection, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, action.Name, position, action.Prompt, action.System, action.Model,
		nullFloat(action.Temperature), action.Replace, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert action %q: %w", action.Name, err)
	}
	return nil
}

const actionColumns = "name, prompt, system, model, temperature, replace_selection"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (types.Action, error) {
	var a types.Action
	var temp sql.NullFloat64
	if err := row.Scan(&a.Name, &a.Prompt, &a.System, &a.Model, &temp, &a.Replace); err != nil {
		return types.Action{}, err
	}
	if temp.Valid {
		a.Temperature = types.Float64(temp.Float64)
	}
	return a, nil
}

func (s *SQLiteStorage) GetAction(ctx context.Context, name string) (types.Action, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+actionColumns+" FROM actions WHERE name = ?", name)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Action{}, fmt.Errorf("action %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return types.Action{}, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}

// ListActions returns all actions in display order
func (s *SQLiteStorage) ListActions(ctx context.Context) ([]types.Action, error) {
	return listActions(ctx, s.db)
}

func listActions(ctx context.Context, q querier) ([]types.Action, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+actionColumns+" FROM actions ORDER BY position, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	actions := make([]types.Action, 0)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *SQLiteStorage) DeleteAction(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM actions WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("action %q: %w", name, ErrNotFound)
	}
	return nil
}

// MoveAction shifts an action delta places in the display order, clamped to the ends
func (s *SQLiteStorage) MoveAction(ctx context.Context, name string, delta int) error {
	return s.inTx(ctx, func(q querier) error {
		actions, err := listActions(ctx, q)
		if err != nil {
			return err
		}

		from := -1
		for i, a := range actions {
			if a.Name == name {
				from = i
				break
			}
		}
		if from < 0 {
			return fmt.Errorf("action %q: %w", name, ErrNotFound)
		}

		to := from + delta
		if to < 0 {
			to = 0
		}
		if to > len(actions)-1 {
			to = len(actions) - 1
		}
		if to == from {
			return nil
		}

		moved := actions[from]
		actions = append(actions[:from], actions[from+1:]...)
		actions = append(actions[:to], append([]types.Action{moved}, actions[to:]...)...)

		for i, a := range actions {
			if _, err := q.ExecContext(ctx, "UPDATE actions SET position = ? WHERE name = ?", i, a.Name); err != nil {
				return fmt.Errorf("failed to reorder actions: %w", err)
			}
		}
		return nil
	})
}

// ReplaceActions discards every saved action and stores actions in the given order
func (s *SQLiteStorage) ReplaceActions(ctx context.Context, actions []types.Action) error {
	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate action name %q", a.Name)
		}
		seen[a.Name] = true
	}

	return s.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM actions"); err != nil {
			return fmt.Errorf("failed to clear actions: %w", err)
		}
		now := time.Now()
		for i, a := range actions {
			if err := insertAction(ctx, q, a, i, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}

	status := &Status{
		BuildMode:     BuildMode,
		SchemaVersion: version.String(),
	}

	if status.EmbeddingsCount, err = s.CountEmbeddings(ctx); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions").Scan(&status.ActionsCount)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT model FROM embeddings ORDER BY model")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	status.EmbeddingModels = make([]string, 0)
	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			return nil, err
		}
		status.EmbeddingModels = append(status.EmbeddingModels, model)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
