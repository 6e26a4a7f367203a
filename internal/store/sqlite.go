// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
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
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
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

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id             TEXT PRIMARY KEY,
			thread_id      TEXT NOT NULL,
			sender         TEXT NOT NULL,
			recipient      TEXT NOT NULL,
			subject        TEXT NOT NULL,
			content        TEXT NOT NULL,
			priority       TEXT NOT NULL DEFAULT 'normal',
			state          TEXT NOT NULL DEFAULT 'sent',
			security_level TEXT NOT NULL DEFAULT 'basic',
			reply_to       TEXT,
			requires_reply INTEGER NOT NULL DEFAULT 0,
			metadata_json  TEXT,
			created_at     TEXT NOT NULL,
			read_at        TEXT,
			replied_at     TEXT,

			CHECK (state IN ('sent', 'arrived', 'read', 'replied', 'ignored', 'unread')),
			CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
			CHECK (security_level IN ('none', 'basic', 'signed', 'encrypted'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_recipient_created
			ON messages(recipient, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_messages_sender
			ON messages(sender);

		CREATE INDEX IF NOT EXISTS idx_messages_thread
			ON messages(thread_id);

		CREATE INDEX IF NOT EXISTS idx_messages_state
			ON messages(state);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create persists a new message, assigning ID and CreatedAt if unset.
func (s *SQLiteStore) Create(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.State == "" {
		msg.State = StateSent
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	if msg.SecurityLevel == "" {
		msg.SecurityLevel = SecurityBasic
	}

	var metadata any
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = string(b)
	}

	var replyTo any
	if msg.ReplyTo != "" {
		replyTo = msg.ReplyTo
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, sender, recipient, subject, content,
			priority, state, security_level, reply_to, requires_reply, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ThreadID, msg.Sender, msg.Recipient, msg.Subject, msg.Content,
		string(msg.Priority), string(msg.State), string(msg.SecurityLevel),
		replyTo, boolToInt(msg.RequiresReply), metadata,
		msg.CreatedAt.UTC().Format(time.RFC3339))

	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Get returns a message by ID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, sender, recipient, subject, content,
			priority, state, security_level, reply_to, requires_reply,
			metadata_json, created_at, read_at, replied_at
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return msg, nil
}

// Query returns messages matching the filter, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f Filter, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var conds []string
	var args []any
	if f.Sender != "" {
		conds = append(conds, "sender = ?")
		args = append(args, f.Sender)
	}
	if f.Recipient != "" {
		conds = append(conds, "recipient = ?")
		args = append(args, f.Recipient)
	}
	if f.ThreadID != "" {
		conds = append(conds, "thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(f.State))
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if f.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339))
	}

	query := `
		SELECT id, thread_id, sender, recipient, subject, content,
			priority, state, security_level, reply_to, requires_reply,
			metadata_json, created_at, read_at, replied_at
		FROM messages`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateState persists a lifecycle transition, stamping read_at or
// replied_at the first time the message reaches that state.
func (s *SQLiteStore) UpdateState(ctx context.Context, id string, state State) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var result sql.Result
	var err error
	switch state {
	case StateRead:
		result, err = s.db.ExecContext(ctx, `
			UPDATE messages SET state = ?, read_at = COALESCE(read_at, ?) WHERE id = ?
		`, string(state), now, id)
	case StateReplied:
		result, err = s.db.ExecContext(ctx, `
			UPDATE messages SET state = ?, replied_at = COALESCE(replied_at, ?) WHERE id = ?
		`, string(state), now, id)
	default:
		result, err = s.db.ExecContext(ctx, `
			UPDATE messages SET state = ? WHERE id = ?
		`, string(state), id)
	}
	if err != nil {
		return false, fmt.Errorf("updating message state: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes the given messages, but only those addressed to owner.
func (s *SQLiteStore) Delete(ctx context.Context, owner string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, owner)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id IN (`+placeholders+`) AND recipient = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanMessage.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	var priority, state, level, createdAt string
	var replyTo, metadata, readAt, repliedAt sql.NullString
	var requiresReply int

	err := row.Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Recipient, &m.Subject, &m.Content,
		&priority, &state, &level, &replyTo, &requiresReply,
		&metadata, &createdAt, &readAt, &repliedAt)
	if err != nil {
		return nil, err
	}

	m.Priority = Priority(priority)
	m.State = State(state)
	m.SecurityLevel = SecurityLevel(level)
	m.RequiresReply = requiresReply != 0
	if replyTo.Valid {
		m.ReplyTo = replyTo.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if readAt.Valid {
		t, _ := time.Parse(time.RFC3339, readAt.String)
		m.ReadAt = &t
	}
	if repliedAt.Valid {
		t, _ := time.Parse(time.RFC3339, repliedAt.String)
		m.RepliedAt = &t
	}
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraintViolation checks if an error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
