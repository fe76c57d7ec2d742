// Package index keeps a rebuildable SQLite index of archived entry metadata.
// Bundles on disk stay the source of truth; the index only records which
// bundle holds a session and what its title, summary and tags are.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/memtier/internal/model"
)

// DefaultPath returns the index location for a store root.
func DefaultPath(root string) string {
	return filepath.Join(root, ".index", "archive.db")
}

// SQLiteIndex implements archive.Indexer using SQLite.
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

// Open opens or creates an index database at the given path.
func Open(dbPath string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	ix := &SQLiteIndex{db: db, path: dbPath}
	if err := ix.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return ix, nil
}

func (ix *SQLiteIndex) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archived (
		scope              TEXT NOT NULL,
		session_id         TEXT NOT NULL,
		year_month         TEXT NOT NULL,
		node_id            TEXT NOT NULL,
		title              TEXT,
		summary            TEXT,
		tags               TEXT,
		original_last_used TEXT NOT NULL,
		archived_at        TEXT NOT NULL,
		PRIMARY KEY (scope, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_archived_month ON archived(scope, year_month);
	CREATE INDEX IF NOT EXISTS idx_archived_at ON archived(archived_at DESC);
	`
	_, err := ix.db.Exec(schema)
	return err
}

// Path returns the database file location.
func (ix *SQLiteIndex) Path() string {
	return ix.path
}

// Record upserts the metadata of an archived entry. Content is never stored.
func (ix *SQLiteIndex) Record(ctx context.Context, scope string, ym model.YearMonth, e model.ArchivedEntry) error {
	return record(ctx, ix.db, scope, ym, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func record(ctx context.Context, db execer, scope string, ym model.YearMonth, e model.ArchivedEntry) error {
	var tags sql.NullString
	if len(e.Tags) > 0 {
		b, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		tags = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO archived (scope, session_id, year_month, node_id, title, summary, tags, original_last_used, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, session_id) DO UPDATE SET
			year_month = excluded.year_month,
			node_id = excluded.node_id,
			title = excluded.title,
			summary = excluded.summary,
			tags = excluded.tags,
			original_last_used = excluded.original_last_used,
			archived_at = excluded.archived_at`,
		scope, e.SessionID, string(ym), e.NodeID,
		nullable(e.Title), nullable(e.Summary), tags,
		e.OriginalLastUsed.UTC().Format(time.RFC3339Nano),
		e.ArchivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index %s/%s: %w", scope, e.SessionID, err)
	}
	return nil
}

// Lookup returns the bundle month recorded for a session.
func (ix *SQLiteIndex) Lookup(ctx context.Context, scope, sessionID string) (model.YearMonth, bool, error) {
	var ym string
	err := ix.db.QueryRowContext(ctx,
		`SELECT year_month FROM archived WHERE scope = ? AND session_id = ?`, scope, sessionID).Scan(&ym)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.YearMonth(ym), true, nil
}

// Close closes the database.
func (ix *SQLiteIndex) Close() error {
	return ix.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
