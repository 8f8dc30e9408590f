package inventory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL inventory store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the player_items table if it is missing.
func (s *PgStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_items (
			user_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			count   INTEGER NOT NULL,
			PRIMARY KEY (user_id, item_id)
		)`)
	if err != nil {
		return fmt.Errorf("create player_items: %w", err)
	}
	return nil
}

// Load reads every row.
func (s *PgStore) Load(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, item_id, count
		FROM player_items
		WHERE count > 0`)
	if err != nil {
		return nil, fmt.Errorf("query player items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var user, item string
		var n int
		if err := rows.Scan(&user, &item, &n); err != nil {
			return nil, fmt.Errorf("scan player item: %w", err)
		}
		if out[user] == nil {
			out[user] = make(map[string]int)
		}
		out[user][item] = n
	}
	return out, rows.Err()
}

// Save replaces every row in one transaction, sending the inserts as a
// single batch.
func (s *PgStore) Save(ctx context.Context, all map[string]map[string]int) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM player_items`)
		for user, items := range all {
			for item, n := range positive(items) {
				batch.Queue(`INSERT INTO player_items (user_id, item_id, count) VALUES ($1, $2, $3)`, user, item, n)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save player items: %w", err)
		}
		return nil
	})
}

// HealthCheck pings the pool.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
