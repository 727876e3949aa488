package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	syncapp "github.com/fulfillment/backoffice/internal/application/ordersync"
	"github.com/fulfillment/backoffice/internal/infrastructure/config"
	"github.com/fulfillment/backoffice/internal/infrastructure/ecomanager"
	"github.com/fulfillment/backoffice/internal/infrastructure/logger"
	"github.com/fulfillment/backoffice/internal/infrastructure/persistence"
	"github.com/fulfillment/backoffice/internal/infrastructure/position"
	"github.com/fulfillment/backoffice/internal/infrastructure/ratelimit"
	"github.com/fulfillment/backoffice/internal/infrastructure/scheduler"
	"github.com/fulfillment/backoffice/internal/interfaces/http/handler"
	"github.com/fulfillment/backoffice/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewFromSettings(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting order sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with the zap-backed GORM logger
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Redis backs the shared rate counters and the position cache tier.
	// An unreachable Redis is survivable: the governor fails open with a
	// conservative delay and positions fall back to the disk tier.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		_ = rdb.Close()
	}()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unreachable at startup, continuing degraded", zap.Error(err))
	}
	cancelPing()

	// Repositories
	storeRepo := persistence.NewGormStoreRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)

	// Rate governor over shared counters
	budgets := ratelimit.Budgets{
		Second:        cfg.Sync.RateBudgetSecond,
		Minute:        cfg.Sync.RateBudgetMinute,
		Hour:          cfg.Sync.RateBudgetHour,
		Day:           cfg.Sync.RateBudgetDay,
		MinSpacing:    cfg.Sync.MinRequestSpacing,
		FailOpenDelay: cfg.Sync.FailOpenDelay,
	}
	governor, err := ratelimit.NewGovernor(ratelimit.NewRedisCounterStore(rdb), budgets, log)
	if err != nil {
		log.Fatal("Failed to create rate governor", zap.Error(err))
	}

	// Upstream order source, gated by the governor
	clientCfg := ecomanager.DefaultClientConfig()
	clientCfg.PageSize = cfg.Sync.PageSize
	orderSource, err := ecomanager.NewClient(clientCfg, governor, log)
	if err != nil {
		log.Fatal("Failed to create upstream client", zap.Error(err))
	}

	// Position store: Redis cache tier over a disk fallback
	positionStore, err := position.NewStore(position.NewRedisCacheTier(rdb), cfg.Sync.StateDir, log)
	if err != nil {
		log.Fatal("Failed to create position store", zap.Error(err))
	}
	locator := position.NewRecovery(orderSource, log)

	// Sync orchestrator
	orchCfg := syncapp.OrchestratorConfig{
		PageSize:            cfg.Sync.PageSize,
		MaxEmptyPages:       cfg.Sync.MaxEmptyPages,
		ForwardHorizonPages: cfg.Sync.ForwardHorizonPages,
		BackwardWindowPages: cfg.Sync.BackwardWindowPages,
		MaxMalformedPages:   cfg.Sync.MaxMalformedPages,
		FetchRetries:        cfg.Sync.FetchRetries,
		RetryBaseDelay:      cfg.Sync.RetryBaseDelay,
		StaleHorizon:        cfg.Sync.PositionStaleHorizon,
	}
	orchestrator, err := syncapp.NewOrchestrator(orderSource, positionStore, locator, orderRepo, orchCfg, log)
	if err != nil {
		log.Fatal("Failed to create sync orchestrator", zap.Error(err))
	}

	// Cycle scheduler
	schedCfg := scheduler.SyncCycleSchedulerConfig{
		Enabled:       cfg.Scheduler.Enabled,
		CycleInterval: cfg.Scheduler.CycleInterval,
		StoreCooldown: cfg.Scheduler.StoreCooldown,
		PassTimeout:   cfg.Scheduler.PassTimeout,
		MaxHistory:    cfg.Scheduler.MaxHistory,
	}
	cycleScheduler, err := scheduler.NewSyncCycleScheduler(schedCfg, orchestrator, storeRepo, log)
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	if schedCfg.Enabled {
		if err := cycleScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
	} else {
		log.Info("Sync scheduler disabled by configuration")
	}

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
		}
	}

	syncHandler := handler.NewSyncHandler(storeRepo, governor, orchestrator, cycleScheduler)
	systemHandler := handler.NewSystemHandler(db)
	router.NewRouter(engine).
		Register(syncHandler).
		Register(systemHandler).
		Setup()

	// Plain liveness probe outside the API group
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if schedCfg.Enabled {
		if err := cycleScheduler.Stop(ctx); err != nil {
			log.Error("Sync scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
