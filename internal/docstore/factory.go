package docstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentid/walletpass/internal/config"
)

// NewDocumentStore connects the backend selected by DOCUMENT_STORE.
// The postgres backend is migrated to the latest schema before it is returned.
func NewDocumentStore(ctx context.Context, cfg *config.ServerEnvironment, logger *slog.Logger) (DocumentStore, error) {
	switch cfg.DocumentStore {
	case "postgres":
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to PostgreSQL")

		store := NewPostgresStore(pool, logger)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DatabasePingTimeout)
		defer cancel()

		store, err := NewRedisStore(pingCtx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to Redis")
		return store, nil

	case "memory":
		logger.Warn("using in-memory document store, records are lost on restart")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported document store: %s", cfg.DocumentStore)
	}
}

func newPool(ctx context.Context, cfg *config.ServerEnvironment) (*pgxpool.Pool, error) {
	dbCtx, dbCancel := context.WithTimeout(ctx, cfg.DatabasePingTimeout)
	defer dbCancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(dbCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err = pool.Ping(dbCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database via pool: %w", err)
	}
	return pool, nil
}
