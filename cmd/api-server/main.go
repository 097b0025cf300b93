package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hakeemcare/clinic-booking/internal/api"
	"github.com/hakeemcare/clinic-booking/internal/booking"
	"github.com/hakeemcare/clinic-booking/internal/cache"
	"github.com/hakeemcare/clinic-booking/internal/config"
	"github.com/hakeemcare/clinic-booking/internal/db"
	"github.com/hakeemcare/clinic-booking/internal/logging"
	redisclient "github.com/hakeemcare/clinic-booking/internal/redis"
	"github.com/hakeemcare/clinic-booking/internal/schedule"
	"github.com/hakeemcare/clinic-booking/internal/user"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	userRepo := user.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)
	bookingRepo := booking.NewPgRepository(pgPool)
	availabilityCache := cache.NewAvailability(rdb, cfg.CacheTTL)

	scheduleSvc := schedule.NewService(scheduleRepo, availabilityCache, logger)
	bookingSvc := booking.NewService(bookingRepo, userRepo, scheduleRepo, availabilityCache, logger)

	router := api.NewRouter(api.RouterConfig{
		Booking:   bookingSvc,
		Schedules: scheduleSvc,
		PgPool:    pgPool,
		Redis:     rdb,
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal("http server error", zap.Error(err))
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
