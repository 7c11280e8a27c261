package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbTimeLayout = time.RFC3339Nano

// SQLite stores entries in a single table ordered by an autoincrement key
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and runs migrations
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite journal: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite journal: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: open db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and writes ordered
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite journal: %s: %w", pragma, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite journal: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("init schema_migrations: %w", err)
		}
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version: 1,
			statements: []string{`
			CREATE TABLE IF NOT EXISTS journal (
				seq          INTEGER PRIMARY KEY AUTOINCREMENT,
				id           TEXT    NOT NULL UNIQUE,
				kind         TEXT    NOT NULL,
				platform     TEXT    NOT NULL DEFAULT '',
				chat_id      TEXT    NOT NULL DEFAULT '',
				user_id      TEXT    NOT NULL,
				label        TEXT    NOT NULL DEFAULT '',
				display_name TEXT    NOT NULL DEFAULT '',
				handle       TEXT    NOT NULL DEFAULT '',
				restricted   INTEGER NOT NULL DEFAULT 0,
				actor        TEXT    NOT NULL DEFAULT '',
				created_at   TEXT    NOT NULL
			)`,
				"CREATE INDEX IF NOT EXISTS idx_journal_chat_user ON journal(platform, chat_id, user_id)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}
	return nil
}

// Append inserts e
func (s *SQLite) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal (id, kind, platform, chat_id, user_id, label, display_name, handle, restricted, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Platform, e.ChatID, e.UserID, e.Label, e.DisplayName, e.Handle,
		e.Restricted, e.Actor, e.Timestamp.UTC().Format(dbTimeLayout))
	if err != nil {
		return fmt.Errorf("sqlite journal: append: %w", err)
	}
	return nil
}

// Replay calls fn for every entry in insertion order
func (s *SQLite) Replay(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, platform, chat_id, user_id, label, display_name, handle, restricted, actor, created_at
		 FROM journal ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("sqlite journal: query: %w", err)
	}

	// collect first so fn may append without deadlocking the single connection
	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			created string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Platform, &e.ChatID, &e.UserID, &e.Label, &e.DisplayName,
			&e.Handle, &e.Restricted, &e.Actor, &created); err != nil {
			_ = rows.Close()
			return fmt.Errorf("sqlite journal: scan: %w", err)
		}
		e.Kind = Kind(kind)
		if e.Timestamp, err = time.Parse(dbTimeLayout, created); err != nil {
			_ = rows.Close()
			return fmt.Errorf("sqlite journal: parse time %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("sqlite journal: rows: %w", err)
	}
	_ = rows.Close()

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
