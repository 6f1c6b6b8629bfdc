package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/checkout"
	"finitefield.org/hanko-storefront/internal/i18n"
	"finitefield.org/hanko-storefront/internal/platform/config"
	"finitefield.org/hanko-storefront/internal/platform/observability"
	"finitefield.org/hanko-storefront/internal/session"
	"finitefield.org/hanko-storefront/internal/syncbus"
)

const (
	sweepInterval    = time.Minute
	shutdownTimeout  = 15 * time.Second
	defaultSecretDir = "/var/run/secrets/storefront"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(resolveMountedSecret)))
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			logger.Fatal("invalid configuration", zap.Strings("fields", verr.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	messages, err := i18n.Load(cfg.Locale.Default, cfg.Locale.Supported)
	if err != nil {
		logger.Fatal("failed to load message catalogs", zap.Error(err))
	}

	var redisClient *redis.Client
	var bus syncbus.Channel
	if cfg.Sync.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Sync.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("failed to reach redis", zap.String("addr", cfg.Sync.RedisAddr), zap.Error(err))
		}
		bus, err = syncbus.NewRedis(redisClient, cfg.Sync.Channel, syncbus.WithRedisLogger(logger.Named("sync")))
		if err != nil {
			logger.Fatal("failed to initialise sync channel", zap.Error(err))
		}
	} else {
		logger.Info("sync channel running in process")
		bus = syncbus.NewMemory()
	}

	if cfg.API.BaseURL == "" {
		logger.Warn("API_BASE_URL not set; serving in-memory addresses and orders")
	}
	api := checkout.NewClient(cfg.API.BaseURL,
		checkout.WithTimeout(cfg.API.Timeout),
		checkout.WithLogger(logger.Named("api")),
	)

	cookies, ephemeral := session.NewCookieCodec(cfg.Session.SigningKey, cfg.Production())
	if ephemeral {
		logger.Warn("session signing key not configured; sessions will not survive a restart")
	}

	sf := newStorefront(cfg, logger, bus, api, messages, cookies)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		sf.sweep(sweepCtx, sweepInterval)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(sf),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("hanko storefront listening", zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	sweepCancel()
	sweepWG.Wait()
	sf.sessions.CloseAll()
	if err := bus.Close(); err != nil {
		logger.Warn("sync channel close error", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}
}

// resolveMountedSecret reads secret://name references from files mounted under
// STOREFRONT_SECRET_DIR.
func resolveMountedSecret(_ context.Context, ref string) (string, error) {
	name := strings.TrimPrefix(ref, "secret://")
	if name == "" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid secret reference %q", ref)
	}
	dir := strings.TrimSpace(os.Getenv("STOREFRONT_SECRET_DIR"))
	if dir == "" {
		dir = defaultSecretDir
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
