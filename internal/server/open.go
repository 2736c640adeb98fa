package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/garrettladley/noticeboard/internal/changefeed"
	"github.com/garrettladley/noticeboard/internal/migrations"
	"github.com/garrettladley/noticeboard/internal/migrations/postgres"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xslog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// OpenStore connects the configured storage driver and applies its
// migrations. The returned store owns the connection; Close releases it.
func OpenStore(ctx context.Context, cfg Storage, logger *slog.Logger) (storage.NotificationStore, error) {
	logger = logger.With(xslog.Driver(string(cfg.Driver)))

	switch cfg.Driver {
	case StoragePostgres:
		logger.InfoContext(ctx, "initializing PostgreSQL")

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if _, err := postgres.Apply(xslog.WithLogger(ctx, logger), pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return storage.NewPostgresNotificationStore(pool), nil

	case StorageSQLite:
		logger.InfoContext(ctx, "initializing SQLite", slog.String("path", cfg.SQLitePath))

		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if _, err := migrations.Apply(xslog.WithLogger(ctx, logger), db.DB); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return storage.NewSQLiteNotificationStore(db), nil

	case StorageMemory:
		logger.InfoContext(ctx, "initializing in-memory store")
		return storage.NewMemoryNotificationStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenFeed builds the configured change feed. redisClient may be nil unless
// the redis driver is selected.
func OpenFeed(cfg Feed, redisClient *redis.Client, logger *slog.Logger) (changefeed.Feed, error) {
	switch cfg.Driver {
	case FeedRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis feed requires a redis client")
		}
		return changefeed.NewRedis(redisClient, logger), nil
	case FeedKafka:
		return changefeed.NewKafka(cfg.Kafka, logger), nil
	case FeedMemory:
		return changefeed.NewMemory(logger), nil
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.Driver)
	}
}

// OpenRateLimiter builds the configured IP rate limiter.
func OpenRateLimiter(cfg RateLimit, redisClient *redis.Client) (storage.RateLimiter, func() error, error) {
	switch cfg.Backend {
	case RateLimitRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis rate limiter requires a redis client")
		}
		return storage.NewRedisRateLimiter(redisClient, int(cfg.Limit)), func() error { return nil }, nil
	case RateLimitMemory:
		limiter := storage.NewMemoryRateLimiter(cfg.Limit, cfg.Burst)
		return limiter, limiter.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
