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
	"github.com/osiastedian/syshub/services/user/internal/config"
	"github.com/osiastedian/syshub/services/user/internal/handlers"
	"github.com/osiastedian/syshub/services/user/internal/storage"
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

	codes, attempts, closeCodes, err := buildChallengeStore(cfg, logger)
	if err != nil {
		logger.Error("challenge store init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = closeCodes()
	}()

	publisher, err := kafka.NewPublisher(cfg.KafkaBrokers, logger, kafka.NewProducerMetrics(registry))
	if err != nil {
		logger.Error("kafka publisher init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = publisher.Close()
	}()

	handler := handlers.New(storage.New(pool), logger, []byte(cfg.JWTSecret), codes, attempts, publisher)
	handler.ReauthMaxAge = cfg.ReauthMaxAge

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handler.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("user service starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

// buildChallengeStore shares the redis the auth service checks SMS login
// codes against. The code-attempt limiter lives there too so both services
// draw on one budget per user.
func buildChallengeStore(cfg *config.Config, logger *slog.Logger) (challenge.Store, rate.Limiter, func() error, error) {
	memory := func() (challenge.Store, rate.Limiter, func() error, error) {
		return challenge.NewMemoryStore(challenge.DefaultTTL, challenge.DefaultMaxAttempts),
			rate.NewMemory(cfg.CodeLimit.Checks, cfg.CodeLimit.Window),
			func() error { return nil }, nil
	}
	dev := cfg.App.Env == "dev" || cfg.App.Env == "test"

	if cfg.Challenge.Addr == "" {
		if dev {
			return memory()
		}
		return nil, nil, nil, fmt.Errorf("challenge redis not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Challenge.Addr,
		Password: cfg.Challenge.Password,
		DB:       cfg.Challenge.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if dev {
			logger.Warn("challenge redis unavailable, falling back to memory", "error", err)
			return memory()
		}
		return nil, nil, nil, err
	}
	codes := challenge.NewRedisStore(client, cfg.Challenge.Prefix, challenge.DefaultTTL, challenge.DefaultMaxAttempts)
	attempts := rate.NewRedisLimiter(client, cfg.CodeLimit.Checks, cfg.CodeLimit.Window, cfg.CodeLimit.Prefix)
	return codes, attempts, client.Close, nil
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
