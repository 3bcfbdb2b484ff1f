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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otpattend/internal/attendance"
	"otpattend/internal/auth"
	"otpattend/internal/config"
	"otpattend/internal/handler"
	"otpattend/internal/httpmiddleware"
	"otpattend/internal/logger"
	"otpattend/internal/metrics"
	"otpattend/internal/queue"
	"otpattend/internal/store"
	"otpattend/internal/worker"
)

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

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
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
	if err := svc.Seed(ctx, attendance.SeedConfig{
		AdminEmail:    cfg.SeedAdminEmail,
		AdminPassword: cfg.SeedAdminPassword,
		AdminName:     cfg.SeedAdminName,
	}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	// Nobody else can drain an in-process queue.
	if cfg.QueueBackend == "memory" {
		w := &worker.Worker{Queue: q, Purger: svc, SweepInterval: cfg.OTPSweepInterval, Log: log.Named("worker")}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("in-process worker failed", zap.Error(err))
			}
		}()
	}

	sessions := &auth.Manager{
		Issuer:       cfg.JWTIssuer,
		SigningKey:   cfg.JWTSigningKey,
		TTL:          cfg.SessionTTL,
		SecureCookie: cfg.CookieSecure,
		Logger:       log.Named("auth"),
	}
	var otpLimiter httpmiddleware.Limiter
	if redisClient != nil {
		sessions.Revoker = auth.NewRedisRevoker(redisClient)
		otpLimiter = httpmiddleware.NewRedisWindow(redisClient, "ratelimit:otp:", cfg.OTPMaxAttempts, cfg.OTPAttemptWindow)
	} else {
		otpLimiter = httpmiddleware.NewTokenBucket(cfg.OTPMaxAttempts, cfg.OTPMaxAttempts, cfg.OTPAttemptWindow)
	}

	h := handler.New(handler.Config{
		Service:    svc,
		Sessions:   sessions,
		Events:     q,
		OTPLimiter: otpLimiter,
		Logger:     log.Named("http"),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(log.Named("http"), "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(metrics.GinMiddleware())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	r.Use(sessions.Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Healthy(c.Request.Context())
		redisHealthy := rdb.Healthy(c.Request.Context())
		status := http.StatusOK
		// redis is optional; only count it when configured
		if !dbHealthy || (rdb != nil && !redisHealthy) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"db": dbHealthy, "redis": redisHealthy})
	})
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("db", cfg.DBDriver), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
