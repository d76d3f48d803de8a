package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/strata/internal/storage/types"
)

// Structured is the indexed on-device tier, backed by an embedded DuckDB
// database with a single key-value table. It holds more than the local
// file tier comfortably can and supports exact-key lookups through the
// primary key index.
type Structured struct {
	db *sql.DB
}

// NewStructured opens (or creates) the DuckDB database under dir.
func NewStructured(dir string) (*Structured, error) {
	db, err := sql.Open("duckdb", filepath.Join(dir, "strata.db"))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key VARCHAR PRIMARY KEY,
		envelope BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return &Structured{db: db}, nil
}

// Tier returns TierStructured.
func (s *Structured) Tier() types.Tier { return types.TierStructured }

// Get looks up the envelope for key.
func (s *Structured) Get(ctx context.Context, key string) (types.Envelope, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT envelope FROM kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Envelope{}, false, nil
	}
	if err != nil {
		return types.Envelope{}, false, fmt.Errorf("query %s: %w", key, err)
	}

	env, err := types.UnmarshalEnvelope(data)
	if err != nil {
		return types.Envelope{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return env, true, nil
}

// Set upserts the envelope for key.
func (s *Structured) Set(ctx context.Context, key string, env types.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, envelope, updated_at) VALUES (?, ?, current_timestamp)`,
		key, data)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes the row for key.
func (s *Structured) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// Exists reports whether a row exists for key.
func (s *Structured) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM kv WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return true, nil
}

// Close closes the database.
func (s *Structured) Close() error {
	return s.db.Close()
}
