package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/discountrules/internal/localization"
)

var _ localization.Registry = (*PostgresLabels)(nil)

// PostgresLabels stores label texts in the 'locale_resources' table.
type PostgresLabels struct {
	db *pgxpool.Pool
}

func NewPostgresLabels(db *pgxpool.Pool) *PostgresLabels {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresLabels{db: db}
}

// RegisterLabel inserts or replaces the text stored under key.
func (l *PostgresLabels) RegisterLabel(ctx context.Context, key, defaultText string) error {
	if key == "" {
		return fmt.Errorf("store: label key cannot be empty")
	}

	query := `
		INSERT INTO locale_resources (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := l.db.Exec(ctx, query, key, defaultText); err != nil {
		return fmt.Errorf("failed to register label %q: %w", key, err)
	}
	return nil
}

func (l *PostgresLabels) RemoveLabel(ctx context.Context, key string) error {
	if _, err := l.db.Exec(ctx, `DELETE FROM locale_resources WHERE name = $1`, key); err != nil {
		return fmt.Errorf("failed to remove label %q: %w", key, err)
	}
	return nil
}

// Lookup returns the text registered under key.
func (l *PostgresLabels) Lookup(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := l.db.QueryRow(ctx, `SELECT value FROM locale_resources WHERE name = $1`, key).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up label %q: %w", key, err)
	}
	return text, true, nil
}
