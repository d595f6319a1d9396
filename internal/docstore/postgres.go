package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	sqlschema "github.com/studentid/walletpass/sql"
)

const (
	upsertDocumentSQL = `
INSERT INTO documents (collection, doc_key, fields, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, doc_key)
DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`

	getDocumentSQL = `SELECT fields FROM documents WHERE collection = $1 AND doc_key = $2`
)

// PostgresStore stores documents as jsonb rows in the documents table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore wraps an existing pool. The pool is closed by Close.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(sqlschema.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, sqlschema.Dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		s.logger.Info("database migrations applied", slog.Int64("version", version))
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, collection, key string, fields map[string]any) error {
	if err := validateAddress(collection, key); err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]any{}
	}

	if _, err := s.pool.Exec(ctx, upsertDocumentSQL, collection, key, fields); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	if err := validateAddress(collection, key); err != nil {
		return nil, err
	}

	var fields map[string]any
	err := s.pool.QueryRow(ctx, getDocumentSQL, collection, key).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, key, err)
	}
	return fields, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.logger.Info("database connection closed")
	return nil
}
