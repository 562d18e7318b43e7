package credstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore shares one session between every console process pointed at
// the same database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS console_credentials (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure console_credentials schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO console_credentials (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
	updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, q, KeyCredential, e.Credential); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, KeyProfile, e.Profile); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context) (Entry, error) {
	const q = `SELECT key, value FROM console_credentials WHERE key IN ($1, $2)`
	rows, err := s.db.QueryContext(ctx, q, KeyCredential, KeyProfile)
	if err != nil {
		return Entry{}, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, 2)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Entry{}, fmt.Errorf("scan credential: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Entry{}, fmt.Errorf("iterate credentials: %w", err)
	}
	return entryFrom(values)
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	const q = `DELETE FROM console_credentials WHERE key IN ($1, $2)`
	if _, err := s.db.ExecContext(ctx, q, KeyCredential, KeyProfile); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeLegacy(ctx context.Context) error {
	const q = `DELETE FROM console_credentials WHERE key = ANY($1)`
	if _, err := s.db.ExecContext(ctx, q, pq.Array(LegacyKeys)); err != nil {
		return fmt.Errorf("purge legacy credentials: %w", err)
	}
	return nil
}
