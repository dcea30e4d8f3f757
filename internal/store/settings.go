// Package store is the PostgreSQL data access layer: the settings repository
// rules read their configuration from and the locale resource table labels
// are installed into.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/discountrules/internal/settings"
)

// Compile-time checks: if the interfaces change and the struct doesn't, the build fails here.
var (
	_ settings.ReadWriter = (*PostgresSettings)(nil)
	_ settings.Lister     = (*PostgresSettings)(nil)
)

// ErrEmptyKey is returned when a write is attempted with an empty key.
var ErrEmptyKey = errors.New("store: setting key cannot be empty")

// PostgresSettings is the settings repository backed by the 'settings' table.
type PostgresSettings struct {
	db *pgxpool.Pool
}

// NewPostgresSettings creates a repository over the given pool.
func NewPostgresSettings(db *pgxpool.Pool) *PostgresSettings {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresSettings{db: db}
}

// Get returns the value stored under key. A missing row is reported through
// found=false, never as an error.
func (s *PostgresSettings) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key, bumping updated_at on replacement.
func (s *PostgresSettings) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	query := `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// 23502: not_null_violation
			if pgErr.Code == "23502" {
				return fmt.Errorf("setting %q rejected: %s", key, pgErr.Message)
			}
		}
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *PostgresSettings) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", key, err)
	}
	return nil
}

// List returns every setting whose key starts with prefix. An empty prefix
// matches the whole table.
func (s *PostgresSettings) List(ctx context.Context, prefix string) (map[string]string, error) {
	query := `SELECT key, value FROM settings WHERE key LIKE $1 ESCAPE '\' ORDER BY key`

	rows, err := s.db.Query(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes prefix match literally inside a LIKE pattern.
func escapeLike(prefix string) string {
	return likeEscaper.Replace(prefix)
}
