package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garrettladley/noticeboard/internal/changefeed"
	"github.com/garrettladley/noticeboard/internal/realtime"
	xredis "github.com/garrettladley/noticeboard/internal/redis"
	"github.com/garrettladley/noticeboard/internal/server"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/telemetry"
	"github.com/garrettladley/noticeboard/internal/xslog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	keyPort        = "port"
	keyGracePeriod = "grace_period"
	keyFeed        = "feed"

	sseShutdownGracePeriod = 2 * time.Second
	shutdownTimeout        = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := server.ReadConfig()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, string(cfg.Env))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			logger.ErrorContext(ctx, "failed to shut down tracing", xslog.Error(err))
		}
	}()

	if cfg.Env.IsDevelopment() {
		logger.InfoContext(ctx, "running in development mode",
			xslog.Driver(string(cfg.Storage.Driver)),
			slog.String(keyFeed, string(cfg.Feed.Driver)),
		)
	}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		logger.InfoContext(ctx, "initializing Redis")
		redisClient, err = xredis.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize redis client: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	base, err := server.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := base.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close storage", xslog.Error(err))
		}
	}()

	feed, err := server.OpenFeed(cfg.Feed, redisClient, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize change feed: %w", err)
	}
	defer func() {
		if err := feed.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close change feed", xslog.Error(err))
		}
	}()

	limiter, closeLimiter, err := server.OpenRateLimiter(cfg.RateLimit, redisClient)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer func() { _ = closeLimiter() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager := realtime.NewManager(
		changefeed.NewTransport(feed, logger),
		realtime.WithLogger(logger),
		realtime.WithMetrics(realtime.NewMetrics(registry)),
	)
	defer manager.Close()

	store := storage.NewPublishingStore(base, feed, logger)

	handler := server.NewHandler(server.Deps{
		Store:    store,
		Manager:  manager,
		Limiter:  limiter,
		Registry: registry,
		Logger:   logger,
	})

	shutdownCoordinator := server.NewShutdownCoordinator(sseShutdownGracePeriod)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // disabled for SSE; use SetWriteDeadline per-request
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return shutdownCoordinator.BaseContext()
		},
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logger.InfoContext(ctx, "starting server",
			xslog.Version(),
			slog.String(keyPort, cfg.Port),
			xslog.Driver(string(cfg.Storage.Driver)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown")

		// cancel base context and wait grace period for SSE connections to close
		shutdownCoordinator.InitiateShutdown()
		logger.InfoContext(ctx, "SSE grace period complete, shutting down server",
			slog.Duration(keyGracePeriod, sseShutdownGracePeriod))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}
