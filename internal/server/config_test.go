package server

import (
	"testing"

	"github.com/garrettladley/noticeboard/internal/changefeed"
	appenv "github.com/garrettladley/noticeboard/internal/env"
)

func validConfig() Config {
	return Config{
		Port:      "8080",
		Env:       "development",
		Storage:   Storage{Driver: StorageMemory},
		Feed:      Feed{Driver: FeedMemory},
		RateLimit: RateLimit{Limit: 10, Burst: 20, Backend: RateLimitMemory},
	}
}

func TestReadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("FEED_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, err := ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Feed.Driver != FeedKafka {
		t.Errorf("Feed.Driver = %q", cfg.Feed.Driver)
	}
	if len(cfg.Feed.Kafka.Brokers) != 2 || cfg.Feed.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Feed.Kafka.Brokers)
	}
	if cfg.Feed.Kafka.Topic != "noticeboard.realtime" {
		t.Errorf("Kafka.Topic = %q", cfg.Feed.Kafka.Topic)
	}
	if cfg.RateLimit.Limit != 5 || cfg.RateLimit.Burst != 20 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Telemetry.Endpoint != "collector:4318" || cfg.Telemetry.ServiceName != "noticeboard" {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
}

func TestReadConfigRejectsUnknownEnv(t *testing.T) {
	t.Setenv("ENV", "staging")

	if _, err := ReadConfig(); err == nil {
		t.Fatal("ReadConfig() error = nil, want error for unknown ENV")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }, wantErr: true},
		{name: "postgres with url", mutate: func(c *Config) {
			c.Storage.Driver = StoragePostgres
			c.Storage.DatabaseURL = "postgres://localhost/noticeboard"
		}},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: true},
		{name: "redis feed without url", mutate: func(c *Config) { c.Feed.Driver = FeedRedis }, wantErr: true},
		{name: "kafka feed without brokers", mutate: func(c *Config) {
			c.Feed.Driver = FeedKafka
			c.Feed.Kafka = changefeed.KafkaConfig{}
		}, wantErr: true},
		{name: "redis rate limit without url", mutate: func(c *Config) { c.RateLimit.Backend = RateLimitRedis }, wantErr: true},
		{name: "memory storage in production", mutate: func(c *Config) {
			c.Env = appenv.Production
			c.Storage.Driver = StorageMemory
		}, wantErr: true},
		{name: "memory storage in development", mutate: func(c *Config) { c.Storage.Driver = StorageMemory }},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.Limit = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
