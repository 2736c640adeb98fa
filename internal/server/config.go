package server

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/garrettladley/noticeboard/internal/changefeed"
	appenv "github.com/garrettladley/noticeboard/internal/env"
	xredis "github.com/garrettladley/noticeboard/internal/redis"
	"github.com/garrettladley/noticeboard/internal/telemetry"
)

type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageSQLite   StorageDriver = "sqlite"
	StorageMemory   StorageDriver = "memory"
)

type FeedDriver string

const (
	FeedRedis  FeedDriver = "redis"
	FeedKafka  FeedDriver = "kafka"
	FeedMemory FeedDriver = "memory"
)

type RateLimitBackend string

const (
	RateLimitMemory RateLimitBackend = "memory"
	RateLimitRedis  RateLimitBackend = "redis"
)

type Config struct {
	Port      string             `env:"PORT" envDefault:"8080"`
	Env       appenv.Environment `env:"ENV" envDefault:"development"`
	Storage   Storage
	Feed      Feed
	Redis     xredis.Config    `envPrefix:"REDIS_"`
	RateLimit RateLimit        `envPrefix:"RATE_"`
	Telemetry telemetry.Config `envPrefix:"OTEL_"`
}

type Storage struct {
	Driver      StorageDriver `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string        `env:"DATABASE_URL"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"noticeboard.db"`
}

type Feed struct {
	Driver FeedDriver             `env:"FEED_DRIVER" envDefault:"memory"`
	Kafka  changefeed.KafkaConfig `envPrefix:"KAFKA_"`
}

type RateLimit struct {
	Limit   float64          `env:"LIMIT" envDefault:"10"`
	Burst   int              `env:"BURST" envDefault:"20"`
	Backend RateLimitBackend `env:"LIMIT_BACKEND" envDefault:"memory"`
}

func ReadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and the settings each driver needs.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite storage driver"))
		}
	case StorageMemory:
		if c.Env.IsProduction() {
			errs = append(errs, errors.New("the memory storage driver is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}

	switch c.Feed.Driver {
	case FeedRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis feed driver"))
		}
	case FeedKafka:
		if len(c.Feed.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka feed driver"))
		}
	case FeedMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown FEED_DRIVER %q", c.Feed.Driver))
	}

	switch c.RateLimit.Backend {
	case RateLimitRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis rate limit backend"))
		}
	case RateLimitMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}

	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT must be positive"))
	}

	return errors.Join(errs...)
}

// NeedsRedis reports whether any configured component uses Redis.
func (c Config) NeedsRedis() bool {
	return c.Feed.Driver == FeedRedis || c.RateLimit.Backend == RateLimitRedis
}
