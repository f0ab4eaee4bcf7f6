package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
)

// Database bundles the shared backends: Redis for cache and rate-limit
// state, Postgres for the optional durable analytics sink. Either may be
// absent; callers degrade to in-process behavior when a handle is nil.
type Database struct {
	Redis  *redis.Client
	PG     *pgxpool.Pool
	logger *logrus.Logger
}

func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{logger: logger}

	db.initRedis(cfg)
	if err := db.initPostgres(cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis connects the shared Redis backend. Connection failure is a
// deliberate degradation, not a startup error: cache and rate-limit state
// fall back to per-process memory, which breaks cross-instance consistency.
func (db *Database) initRedis(cfg *config.Config) {
	if cfg.Redis.URL == "" {
		db.logger.Warn("Redis not configured, cache and rate-limit state will be process-local")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.URL,
		Password:     cfg.Redis.Password,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		db.logger.WithError(err).Warn("Redis unreachable, falling back to in-process cache and rate limiting")
		_ = client.Close()
		return
	}

	db.Redis = client
	db.logger.Info("Redis connection established")
}

// initPostgres connects the analytics sink pool when configured. A bad URL
// is a configuration error; an empty URL just disables the sink.
func (db *Database) initPostgres(cfg *config.Config) error {
	if cfg.Postgres.URL == "" {
		db.logger.Info("Postgres not configured, analytics events are memory-only")
		return nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("failed to parse Postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Postgres.MaxConnections)
	poolConfig.ConnConfig.ConnectTimeout = cfg.Postgres.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create Postgres pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		db.logger.WithError(err).Warn("Postgres unreachable, analytics sink disabled")
		pool.Close()
		return nil
	}

	db.PG = pool
	db.logger.Info("Postgres connection established")
	return nil
}

func (db *Database) Close() error {
	var errs []error

	if db.PG != nil {
		db.PG.Close()
		db.logger.Info("Postgres connection closed")
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		} else {
			db.logger.Info("Redis connection closed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing database connections: %v", errs)
	}
	return nil
}
