package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/activity"
	"taskboard/api"
	"taskboard/auth"
	"taskboard/board"
	"taskboard/internal/config"
	"taskboard/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run wires the service and blocks until it stops. Failures are returned
// rather than fatal so the deferred closers flush the board first.
func run() error {
	cfg, err := config.Load("taskboard", os.Args[1:], os.Getenv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openKV(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer closeKV()

	users := auth.NewUsers(kv, logger)
	if cfg.SeedDemo {
		if err := users.SeedDemo(ctx); err != nil {
			logger.WithError(err).Warn("failed to seed demo user")
		}
	}

	store := board.Open(ctx, storage.NewSnapshots(kv),
		board.WithLogger(logger),
		board.WithSaveTimeout(cfg.Storage.SaveTimeout),
	)
	defer store.Close()

	var actOpts []activity.Option
	actOpts = append(actOpts, activity.WithLogger(logger))
	if cfg.Storage.ActivityQueue != "" {
		sink, err := activity.NewQueueSink(cfg.Storage.ConnectionString, cfg.Storage.ActivityQueue)
		if err != nil {
			return fmt.Errorf("activity queue: %w", err)
		}
		actOpts = append(actOpts, activity.WithSink(sink))
	}
	acts := activity.Open(ctx, kv, actOpts...)

	var jwks *keyfunc.JWKS
	if cfg.Auth.JWKSURL != "" {
		jwks, err = keyfunc.Get(cfg.Auth.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		defer jwks.EndBackground()
	}
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL, jwks)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderContentEncoding, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	api.New(store, users, acts, tokens, logger).Register(e)

	logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Storage.Backend}).Info("taskboard listening")
	if err := serve(ctx, e, cfg.ListenAddr, logger); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// serve runs e until ctx is done or the listener fails, then shuts it down.
// It returns the listener error, if any, so deferred cleanup still runs.
func serve(ctx context.Context, e *echo.Echo, addr string, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
	return serveErr
}

// openKV builds the key/value backend selected by cfg. The returned function
// releases any client connections.
func openKV(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (storage.KV, func(), error) {
	var rc *redis.Client
	if cfg.RedisConnectionString != "" {
		opts, err := storage.ParseRedisOptions(cfg.RedisConnectionString)
		if err != nil {
			return nil, nil, err
		}
		rc = redis.NewClient(opts)
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, nil, err
		}
	}
	closeRedis := func() {
		if rc != nil {
			_ = rc.Close()
		}
	}

	switch cfg.Backend {
	case config.BackendRedis:
		return storage.NewRedisKV(rc, cfg.KeyPrefix), closeRedis, nil
	case config.BackendTable:
		table, err := storage.NewTableKV(cfg.ConnectionString, cfg.StateTable, cfg.Partition)
		if err != nil {
			closeRedis()
			return nil, nil, err
		}
		if rc == nil {
			return table, closeRedis, nil
		}
		return storage.NewCache(table, rc, cfg.CacheTTL, logger), closeRedis, nil
	default:
		return storage.NewMemoryKV(), closeRedis, nil
	}
}
