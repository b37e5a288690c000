// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides association/ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS associations (
			conversation_id TEXT PRIMARY KEY,
			platform        TEXT NOT NULL,
			channel_id      TEXT NOT NULL,
			thread_id       TEXT NOT NULL DEFAULT '',
			working_dir     TEXT NOT NULL,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ledger (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			kind            TEXT NOT NULL,
			detail          TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_conversation
			ON ledger(conversation_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Associate records or replaces a conversation's workdir binding.
func (s *SQLiteStore) Associate(ctx context.Context, a Association) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO associations (conversation_id, platform, channel_id, thread_id, working_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			working_dir = excluded.working_dir,
			updated_at  = excluded.updated_at
	`, a.ConversationID, a.Platform, a.ChannelID, a.ThreadID, a.WorkingDir, now, now)
	if err != nil {
		return fmt.Errorf("saving association: %w", err)
	}
	return nil
}

// Lookup returns a conversation's workdir binding.
func (s *SQLiteStore) Lookup(ctx context.Context, conversationID string) (Association, error) {
	var a Association
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, platform, channel_id, thread_id, working_dir, created_at, updated_at
		FROM associations WHERE conversation_id = ?
	`, conversationID).Scan(&a.ConversationID, &a.Platform, &a.ChannelID, &a.ThreadID, &a.WorkingDir, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Association{}, ErrNotFound
	}
	if err != nil {
		return Association{}, fmt.Errorf("looking up association: %w", err)
	}
	return a, nil
}

// Remove deletes a conversation's workdir binding.
func (s *SQLiteStore) Remove(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM associations WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("removing association: %w", err)
	}
	return nil
}

// List returns all workdir bindings, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Association, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, platform, channel_id, thread_id, working_dir, created_at, updated_at
		FROM associations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing associations: %w", err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var a Association
		if err := rows.Scan(&a.ConversationID, &a.Platform, &a.ChannelID, &a.ThreadID, &a.WorkingDir, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning association: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Record appends a ledger event.
func (s *SQLiteStore) Record(ctx context.Context, conversationID, kind, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (conversation_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, conversationID, kind, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording ledger event: %w", err)
	}
	return nil
}

// Recent returns a conversation's newest ledger entries.
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, kind, detail, created_at
		FROM ledger WHERE conversation_id = ?
		ORDER BY id DESC LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
