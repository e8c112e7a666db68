// Package portrait persists named portraits in SQLite.
package portrait

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
)

// ErrNotFound is returned for a portrait name that is not stored.
var ErrNotFound = errors.New("portrait not found")

const schema = `
CREATE TABLE IF NOT EXISTS portraits (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Summary lists a stored portrait without its body.
type Summary struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is a SQLite-backed portrait store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and if needed creates) the database at path. ":memory:" opens
// a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %q: %w", filepath.Dir(path), err)
		}
		dsn = path + "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create portraits table: %w", err)
	}
	logging.Info("portrait store opened", "path", filepath.Base(path))
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}
	return nil
}

// Save stores body under name, replacing any previous portrait of that name.
func (s *Store) Save(ctx context.Context, name string, body []byte) error {
	if name == "" {
		return fmt.Errorf("save portrait: empty name")
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portraits (name, body, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, string(body), now, now)
	if err != nil {
		return fmt.Errorf("save portrait %q: %w", name, err)
	}
	logging.DebugContext(ctx, "portrait saved", "name", name, "bytes", len(body))
	return nil
}

// Load returns the body stored under name.
func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM portraits WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load portrait %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load portrait %q: %w", name, err)
	}
	return []byte(body), nil
}

// List returns every stored portrait ordered by name.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, created_at, updated_at FROM portraits ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list portraits: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Name, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan portrait: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes the portrait stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portraits WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete portrait %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete portrait %q: %w", name, ErrNotFound)
	}
	return nil
}
