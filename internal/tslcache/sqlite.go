package tslcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-driver-sdk/migrations"
)

// SQLiteStore persists entries in the tsl_cache table.
type SQLiteStore struct {
	db *database.DB
}

// OpenSQLiteStore opens the database at cfg.Path and applies the embedded
// migrations. The returned store owns the database; Close releases it.
func OpenSQLiteStore(ctx context.Context, cfg database.Config) (*SQLiteStore, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	steps, err := database.LoadMigrations(migrations.FS, ".")
	if err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, err
	}
	if err := db.Migrate(ctx, steps); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the stored entry for productKey.
func (s *SQLiteStore) Load(ctx context.Context, productKey string) (Entry, bool, error) {
	var (
		raw       string
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT tsl, fetched_at FROM tsl_cache WHERE product_key = ?", productKey,
	).Scan(&raw, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("loading product model %s: %w", productKey, err)
	}
	return Entry{
		ProductKey: productKey,
		Raw:        raw,
		FetchedAt:  time.UnixMilli(fetchedAt),
	}, true, nil
}

// Save inserts or replaces e.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tsl_cache (product_key, tsl, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(product_key) DO UPDATE SET tsl = excluded.tsl, fetched_at = excluded.fetched_at
	`, e.ProductKey, e.Raw, e.FetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving product model %s: %w", e.ProductKey, err)
	}
	return nil
}

// Delete removes productKey.
func (s *SQLiteStore) Delete(ctx context.Context, productKey string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tsl_cache WHERE product_key = ?", productKey); err != nil {
		return fmt.Errorf("deleting product model %s: %w", productKey, err)
	}
	return nil
}

// HealthCheck verifies the backing database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Close closes the backing database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
