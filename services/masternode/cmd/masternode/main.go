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

	"github.com/osiastedian/syshub/libs/database"
	"github.com/osiastedian/syshub/libs/health"
	"github.com/osiastedian/syshub/libs/httpmiddleware"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/metrics"
	"github.com/osiastedian/syshub/libs/trace"
	"github.com/osiastedian/syshub/services/masternode/internal/config"
	"github.com/osiastedian/syshub/services/masternode/internal/consumer"
	"github.com/osiastedian/syshub/services/masternode/internal/handlers"
	"github.com/osiastedian/syshub/services/masternode/internal/storage"
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
	ready := health.NewManager(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := database.Connect(ctx, cfg.DB)
	cancel()
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	ready.AddCheck("postgres", pool.Ping)

	store := storage.New(pool)
	mnMetrics := handlers.NewMetrics(registry)
	handler := handlers.New(store, logger, mnMetrics)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handler.Register(router, []byte(cfg.JWTSecret))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	if len(cfg.Kafka.Brokers) > 0 {
		dlq, err := kafka.NewPublisher(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
		if err != nil {
			logger.Error("kafka publisher init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = dlq.Close()
		}()

		group, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger,
			kafka.WithDLQ(dlq, kafka.TopicDeadLetter, cfg.Kafka.MaxAttempts))
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = group.Close()
		}()

		deleted := consumer.NewUserDeletedConsumer(store, logger, mnMetrics)
		go func() {
			logger.Info("masternode consumer starting", "topic", kafka.TopicUserDeleted)
			if err := group.Consume(consumerCtx, []string{kafka.TopicUserDeleted}, deleted); err != nil && consumerCtx.Err() == nil {
				logger.Error("kafka consumer error", "error", err)
			}
		}()
	} else {
		logger.Warn("kafka brokers not configured, user.deleted consumer disabled")
	}

	ready.SetReady(true)

	go func() {
		logger.Info("masternode service starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, ready, consumerCancel, logger)
}

func waitForShutdown(server *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
