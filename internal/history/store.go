// Package history provides SQLite-based persistence for chat messages
// with a fixed per-user retention window: after any successful write a
// user holds at most 2×pairs rows, oldest evicted first.
package history

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/ssergeev/membot/internal/chat"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id);`

// ErrInvalidRole rejects writes with a role other than user or
// assistant; the system instruction is never persisted.
var ErrInvalidRole = errors.New("history: role must be user or assistant")

// StorageError wraps an I/O failure of the underlying store together
// with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "history: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// Store is a per-user append-only message log backed by SQLite.
type Store struct {
	db    *sql.DB
	limit int // rows retained per user (2 × pairs)
	log   *slog.Logger
}

// Open creates the database file (and its parent directory) if needed,
// ensures the schema, and returns a store retaining the last `pairs`
// exchanges per user.
func Open(path string, pairs int, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "open", Err: err}
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}
	if pairs < 1 {
		pairs = 1
	}
	return &Store{db: db, limit: pairs * 2, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append persists one message and trims the user's history, both inside
// a single transaction so concurrent appends for the same user can
// never observe more than the retention window after commit.
func (s *Store) Append(ctx context.Context, userID int64, role chat.Role, content string) error {
	if role != chat.RoleUser && role != chat.RoleAssistant {
		return ErrInvalidRole
	}
	err := s.inTx(ctx, "append", func(tx *sql.Tx) error {
		if err := insertMessage(ctx, tx, userID, role, content); err != nil {
			return err
		}
		return trimUser(ctx, tx, userID, s.limit)
	})
	if err != nil {
		return err
	}
	s.log.Debug("message appended", "user_id", userID, "role", string(role))
	return nil
}

// AppendExchange persists a user turn and its assistant turn atomically
// and then trims, so a storage failure can never leave half an exchange
// behind.
func (s *Store) AppendExchange(ctx context.Context, userID int64, userText, assistantText string) error {
	err := s.inTx(ctx, "append_exchange", func(tx *sql.Tx) error {
		if err := insertMessage(ctx, tx, userID, chat.RoleUser, userText); err != nil {
			return err
		}
		if err := insertMessage(ctx, tx, userID, chat.RoleAssistant, assistantText); err != nil {
			return err
		}
		return trimUser(ctx, tx, userID, s.limit)
	})
	if err != nil {
		return err
	}
	s.log.Debug("exchange appended", "user_id", userID)
	return nil
}

// Read returns the retained messages for the user in chronological
// order; an unknown user yields an empty slice.
func (s *Store) Read(ctx context.Context, userID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM messages
		 WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, s.limit)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &createdAt); err != nil {
			return nil, &StorageError{Op: "read", Err: err}
		}
		m.Role = chat.Role(role)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			m.CreatedAt = ts
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	slices.Reverse(out)
	return out, nil
}

// Clear deletes every message of the user. Clearing an empty user is a
// no-op.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	s.log.Debug("history cleared", "user_id", userID)
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return &StorageError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, userID int64, role chat.Role, content string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(role), content, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// trimUser keeps the `limit` most recent rows by id; the tie-break is
// strictly insertion order, never the timestamp.
func trimUser(ctx context.Context, tx *sql.Tx, userID int64, limit int) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?)`,
		userID, userID, limit)
	return err
}
