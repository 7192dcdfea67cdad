package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/poolcredit/internal/amm"
	"github.com/ayo6706/poolcredit/internal/api"
	"github.com/ayo6706/poolcredit/internal/api/handler"
	"github.com/ayo6706/poolcredit/internal/api/middleware"
	"github.com/ayo6706/poolcredit/internal/config"
	"github.com/ayo6706/poolcredit/internal/db"
	"github.com/ayo6706/poolcredit/internal/events"
	"github.com/ayo6706/poolcredit/internal/idempotency"
	"github.com/ayo6706/poolcredit/internal/observability"
	"github.com/ayo6706/poolcredit/internal/repository"
	"github.com/ayo6706/poolcredit/internal/service"
	"github.com/ayo6706/poolcredit/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server, the liquidation keeper and the reconciliation worker,
// blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if cfg.ApplySchema {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	publisher, closePublisher, err := newPublisher(cfg, logger, redisClient)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	defer closePublisher()

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, store.Postgres(), cfg.IdempotencyTTL)
	protocol := amm.NewSimulator()

	svcs := api.Services{
		Vault:          service.NewVaultService(store, cfg.ReserveAsset).WithMaxFixedFee(cfg.MaxFixedFee),
		Assets:         service.NewAssetService(store),
		Loans:          service.NewLoanService(store, protocol, cfg.ReserveAsset),
		Settlement:     service.NewSettlementService(store, protocol, publisher),
		Reconciliation: service.NewReconciliationService(store),
	}

	keeper := worker.NewLiquidationWorker(svcs.Loans, svcs.Settlement).
		WithPollInterval(cfg.LiquidationInterval).
		WithBatchSize(cfg.LiquidationBatchSize)
	if cfg.AutoLiquidate {
		keeper.WithKeeper(cfg.KeeperIdentity)
	}
	stopKeeper := keeper.Run(ctx)
	logger.Info("liquidation worker started",
		zap.Duration("interval", cfg.LiquidationInterval),
		zap.Int32("batch", cfg.LiquidationBatchSize),
		zap.Bool("auto_liquidate", cfg.AutoLiquidate),
	)

	reconciler := worker.NewReconciliationWorker(svcs.Reconciliation).WithInterval(cfg.ReconciliationInterval)
	stopReconciler := reconciler.Run(ctx)

	deps := map[string]handler.Pinger{
		"database": pool,
		"redis":    handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	}
	router := api.NewRouter(cfg, logger, svcs, idemStore, deps)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopKeeper()
	stopReconciler()

	logger.Info("shutdown complete")
	return nil
}

func newPublisher(cfg *config.Config, logger *zap.Logger, redisClient redis.Cmdable) (events.Publisher, func(), error) {
	switch cfg.EventsBackend {
	case config.EventsBackendRedis:
		return events.NewRedisPublisher(redisClient, cfg.LiquidationStream), func() {}, nil
	case config.EventsBackendNATS:
		p, err := events.NewNATSPublisher(events.NATSConfig{
			URL:     cfg.NATSURL,
			Name:    "poolcredit",
			Subject: cfg.LiquidationSubject,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return events.NewLogPublisher(logger), func() {}, nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
