package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/osiastedian/syshub/libs/challenge"
	"github.com/osiastedian/syshub/libs/database"
	"github.com/osiastedian/syshub/libs/health"
	"github.com/osiastedian/syshub/libs/httpmiddleware"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/metrics"
	"github.com/osiastedian/syshub/libs/rate"
	"github.com/osiastedian/syshub/libs/trace"
	"github.com/osiastedian/syshub/services/auth/internal/config"
	"github.com/osiastedian/syshub/services/auth/internal/handlers"
	"github.com/osiastedian/syshub/services/auth/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := metrics.NewRegistry()
	ready := health.NewManager(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := database.Connect(ctx, cfg.DB)
	cancel()
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	ready.AddCheck("postgres", pool.Ping)

	limiter, limiterClose, err := buildLimiter(cfg, logger)
	if err != nil {
		logger.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = limiterClose()
	}()

	codes, attempts, codesClose, err := buildChallengeStore(cfg, logger)
	if err != nil {
		logger.Error("challenge store init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = codesClose()
	}()

	publisher, err := kafka.NewPublisher(cfg.KafkaBrokers, logger, kafka.NewProducerMetrics(registry))
	if err != nil {
		logger.Error("kafka publisher init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = publisher.Close()
	}()

	settings := handlers.Settings{
		JWTSecret:        cfg.JWTSecret,
		Issuer:           cfg.JWTIssuer,
		AccessTTL:        cfg.AccessTokenTTL,
		RefreshTTL:       cfg.RefreshTokenTTL,
		ReauthTTL:        cfg.ReauthTTL,
		ResetTTL:         cfg.ResetTokenTTL,
		MinPasswordScore: cfg.MinPasswordScore,
		Argon2:           cfg.Argon2,
	}
	verifier := &challenge.Verifier{SMS: codes, Attempts: attempts}
	authHandler := handlers.NewAuthHandler(storage.New(pool), logger, settings, limiter, verifier, publisher)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	authHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("auth service starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func devEnv(cfg *config.Config) bool {
	return cfg.App.Env == "dev" || cfg.App.Env == "test"
}

// dialRedis returns a nil client when addr is empty.
func dialRedis(rc config.RedisConfig) (*redis.Client, error) {
	if rc.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func buildLimiter(cfg *config.Config, logger *slog.Logger) (rate.Limiter, func() error, error) {
	memory := func() (rate.Limiter, func() error, error) {
		return rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.Window), func() error { return nil }, nil
	}

	client, err := dialRedis(cfg.RateLimit.Redis)
	if err != nil {
		if devEnv(cfg) {
			logger.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
			return memory()
		}
		return nil, nil, err
	}
	if client != nil {
		return rate.NewRedisLimiter(client, cfg.RateLimit.LoginLimit, cfg.RateLimit.Window, cfg.RateLimit.Redis.Prefix), client.Close, nil
	}
	if devEnv(cfg) {
		return memory()
	}
	return nil, nil, fmt.Errorf("rate limiter redis not configured")
}

// buildChallengeStore must share its redis with the user service, which
// issues the SMS codes that login checks and counts code checks against the
// same per-user budget.
func buildChallengeStore(cfg *config.Config, logger *slog.Logger) (challenge.Store, rate.Limiter, func() error, error) {
	memory := func() (challenge.Store, rate.Limiter, func() error, error) {
		return challenge.NewMemoryStore(challenge.DefaultTTL, challenge.DefaultMaxAttempts),
			rate.NewMemory(cfg.CodeLimit.Checks, cfg.CodeLimit.Window),
			func() error { return nil }, nil
	}

	client, err := dialRedis(cfg.Challenge)
	if err != nil {
		if devEnv(cfg) {
			logger.Warn("challenge redis unavailable, sms codes are local to this process", "error", err)
			return memory()
		}
		return nil, nil, nil, err
	}
	if client != nil {
		codes := challenge.NewRedisStore(client, cfg.Challenge.Prefix, challenge.DefaultTTL, challenge.DefaultMaxAttempts)
		attempts := rate.NewRedisLimiter(client, cfg.CodeLimit.Checks, cfg.CodeLimit.Window, cfg.CodeLimit.Prefix)
		return codes, attempts, client.Close, nil
	}
	if devEnv(cfg) {
		return memory()
	}
	return nil, nil, nil, fmt.Errorf("challenge redis not configured")
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
