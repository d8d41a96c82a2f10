// Package main is the entry point for the docseq API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docseq/internal/core/security"
	"docseq/internal/domain/auth"
	"docseq/internal/domain/sequence"
	v1 "docseq/internal/infrastructure/http/v1"
	"docseq/internal/infrastructure/http/v1/handlers"
	"docseq/internal/infrastructure/http/v1/middleware"
	"docseq/internal/infrastructure/metrics"
	"docseq/internal/infrastructure/storage/memory"
	"docseq/internal/infrastructure/storage/postgres"
	"docseq/internal/infrastructure/storage/postgres/sequence_repo"
	"docseq/pkg/logger"
)

var version = "dev"

const (
	idempotencyCleanupInterval = 15 * time.Minute
	poolStatsInterval          = time.Minute
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.SetDefault(log)
	ctx = logger.WithLogger(ctx, log.WithComponent("server"))

	log.Infow("starting docseq server", "storage", cfg.Storage, "version", version)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	seqCfg := sequence.Config{
		Access:   security.SequenceAccess{},
		Metrics:  metrics.NewSequenceMetrics(registry),
		LockMode: cfg.LockMode,
		Location: cfg.DefaultTimeZone,
	}

	var (
		history     handlers.HistoryReader
		idempotency middleware.IdempotencyStore
		health      *handlers.HealthHandler
	)

	switch cfg.Storage {
	case storagePostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
		poolCfg.MinConns = int32(cfg.DBMinConns)
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			logger.Fatal(ctx, "failed to connect to database", "error", err)
		}
		defer pool.Close()
		log.Info("database connection established")

		txOpts := postgres.DefaultTxOptions()
		txOpts.StatementTimeout = cfg.StatementTimeout
		txManager := postgres.NewTxManager(pool, txOpts)

		audit, err := postgres.NewAuditService(txManager)
		if err != nil {
			logger.Fatal(ctx, "failed to create audit service", "error", err)
		}
		idemStore := postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL)
		go cleanupIdempotency(ctx, idemStore)
		go reportPoolStats(ctx, pool)

		seqCfg.Repo = sequence_repo.NewSequenceRepo(txManager)
		seqCfg.Counters = sequence_repo.NewCounterStore(txManager)
		seqCfg.Directory = sequence_repo.NewOrganizationRepo(txManager)
		seqCfg.TxManager = txManager
		seqCfg.Audit = audit

		history = audit
		idempotency = idemStore
		metrics.RegisterPoolStats(registry, pool.Stats)
		health = handlers.NewHealthHandler(pool, pool.Stats, cfg.Storage, version)

	case storageMemory:
		store := memory.NewStore()
		seqCfg.Repo = store
		seqCfg.Counters = store.Counters()
		seqCfg.Directory = store
		seqCfg.TxManager = store.TxManager()
		health = handlers.NewHealthHandler(nil, nil, cfg.Storage, version)
		log.Warn("using in-memory storage: sequences are lost on restart")
	}

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:         log,
		JWTValidator:   jwtService,
		Sequences:      sequence.NewService(seqCfg),
		History:        history,
		Idempotency:    idempotency,
		Health:         health,
		Metrics:        middleware.NewMetricsBuilder(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Debug:          cfg.development(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// cleanupIdempotency removes expired idempotency keys until ctx is done.
func cleanupIdempotency(ctx context.Context, store *postgres.IdempotencyStore) {
	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).WithComponent("idempotency"))
	ticker := time.NewTicker(idempotencyCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpired(ctx)
			if err != nil {
				logger.Warn(ctx, "idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug(ctx, "expired idempotency keys removed", "count", n)
			}
		}
	}
}

// reportPoolStats logs connection pool usage until ctx is done.
func reportPoolStats(ctx context.Context, pool *postgres.Pool) {
	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).WithComponent("db"))
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			postgres.LogPoolStats(ctx, pool.Pool)
		}
	}
}
