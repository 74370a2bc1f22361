// Package memory provides the SQLite-backed long-term memory store.
// Facts saved here survive sessions and are surfaced back into worker
// prompts through the memory tools.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/drover-ai/drover/internal/config"
)

// Entry is one remembered fact.
type Entry struct {
	ID        string
	Subject   string
	Content   string
	CreatedAt time.Time
}

// Store wraps an SQLite database holding remembered facts.
type Store struct {
	conn *sql.DB
	path string
}

// DefaultPath returns the memory database location under the user
// data directory.
func DefaultPath() string {
	return filepath.Join(config.DataDir(), "memory.db")
}

// Open opens (and if needed creates) the memory database at path.
// An empty path uses the default location.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_subject ON memories(subject);
CREATE TABLE IF NOT EXISTS transcripts (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcripts_subject ON transcripts(subject);
`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate memory schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save stores a fact for a subject and returns its ID.
func (s *Store) Save(ctx context.Context, subject, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("memory: refusing to save empty content")
	}

	id := uuid.NewString()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO memories (id, subject, content, created_at) VALUES (?, ?, ?, ?)`,
		id, subject, content, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("memory: save: %w", err)
	}
	return id, nil
}

// Search returns up to limit entries for a subject whose content
// matches every keyword in the query, newest first.
func (s *Store) Search(ctx context.Context, subject, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}

	where := []string{"subject = ?"}
	args := []interface{}{subject}
	for _, word := range strings.Fields(query) {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+word+"%")
	}
	args = append(args, limit)

	q := fmt.Sprintf(
		`SELECT id, subject, content, created_at FROM memories WHERE %s ORDER BY created_at DESC LIMIT ?`,
		strings.Join(where, " AND "))

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Subject, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Recent returns the newest entries for a subject regardless of content.
func (s *Store) Recent(ctx context.Context, subject string, limit int) ([]Entry, error) {
	return s.Search(ctx, subject, "", limit)
}

// Delete removes one entry by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("memory: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory: no entry with ID %s", id)
	}
	return nil
}

// TranscriptRecord points at one saved transcript file.
type TranscriptRecord struct {
	ID        string
	Subject   string
	Path      string
	CreatedAt time.Time
}

// IndexTranscript records where a session transcript was written so
// later sessions can find it.
func (s *Store) IndexTranscript(ctx context.Context, subject, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("memory: refusing to index empty transcript path")
	}

	id := uuid.NewString()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO transcripts (id, subject, path, created_at) VALUES (?, ?, ?, ?)`,
		id, subject, path, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("memory: index transcript: %w", err)
	}
	return id, nil
}

// Transcripts returns a subject's transcript records, newest first.
func (s *Store) Transcripts(ctx context.Context, subject string, limit int) ([]TranscriptRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, subject, path, created_at FROM transcripts WHERE subject = ? ORDER BY created_at DESC LIMIT ?`,
		subject, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: list transcripts: %w", err)
	}
	defer rows.Close()

	var records []TranscriptRecord
	for rows.Next() {
		var r TranscriptRecord
		if err := rows.Scan(&r.ID, &r.Subject, &r.Path, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of entries stored for a subject.
func (s *Store) Count(ctx context.Context, subject string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE subject = ?`, subject).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("memory: count: %w", err)
	}
	return n, nil
}
