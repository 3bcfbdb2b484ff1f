package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otpattend/internal/attendance"
	"otpattend/internal/config"
	"otpattend/internal/logger"
	"otpattend/internal/queue"
	"otpattend/internal/store"
	"otpattend/internal/worker"
)

// Worker consumes attendance events into the audit log and purges expired codes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend == "memory" {
		// The API drains its own in-memory queue; a separate process only sweeps.
		log.Warn("queue_backend is memory; worker will only purge expired otps")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.App, log *zap.Logger) error {
	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	defer rdb.Close()
	var redisClient *redis.Client
	if rdb != nil {
		redisClient = rdb.Client
	}
	q, err := queue.New(cfg.QueueBackend, redisClient)
	if err != nil {
		return err
	}

	svc := attendance.NewService(attendance.NewRepository(db), cfg.OTPValidity,
		attendance.WithLogger(log.Named("attendance")))

	w := &worker.Worker{
		Queue:         q,
		Purger:        svc,
		SweepInterval: cfg.OTPSweepInterval,
		Log:           log.Named("worker"),
	}
	return w.Run(ctx)
}
