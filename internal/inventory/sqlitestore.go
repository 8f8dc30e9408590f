package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS player_items (
	user_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (user_id, item_id)
);`

// SQLiteStore keeps counts in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("inventory: empty sqlite path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("inventory: creating sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("inventory: opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("inventory: initializing sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads every row.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, item_id, count FROM player_items WHERE count > 0`)
	if err != nil {
		return nil, fmt.Errorf("inventory: query player items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var user, item string
		var n int
		if err := rows.Scan(&user, &item, &n); err != nil {
			return nil, fmt.Errorf("inventory: scan player item: %w", err)
		}
		if out[user] == nil {
			out[user] = make(map[string]int)
		}
		out[user][item] = n
	}
	return out, rows.Err()
}

// Save replaces every row inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, all map[string]map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inventory: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM player_items`); err != nil {
		return fmt.Errorf("inventory: clear player items: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO player_items (user_id, item_id, count) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inventory: prepare insert: %w", err)
	}
	defer stmt.Close()

	for user, items := range all {
		for item, n := range positive(items) {
			if _, err := stmt.ExecContext(ctx, user, item, n); err != nil {
				return fmt.Errorf("inventory: insert player item: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("inventory: commit: %w", err)
	}
	return nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
