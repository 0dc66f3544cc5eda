package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/event-inventory/internal/adapter/handler"
	"github.com/rl1809/event-inventory/internal/adapter/messaging"
	"github.com/rl1809/event-inventory/internal/adapter/storage"
	"github.com/rl1809/event-inventory/internal/auth"
	"github.com/rl1809/event-inventory/internal/config"
	"github.com/rl1809/event-inventory/internal/core/service"
	"github.com/rl1809/event-inventory/internal/platform/observability"
	"github.com/rl1809/event-inventory/internal/port"
)

const healthCheckSchedule = "@every 10s"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireAuth(); err != nil {
		log.Fatalf("invalid auth config: %v", err)
	}

	// Observability
	exportCfg := observability.ExportConfig{Endpoint: cfg.OtelEndpoint, AuthHeader: cfg.OtelAuthHeader}
	tp, traceShutdown, err := observability.SetupTracing(ctx, exportCfg)
	if err != nil {
		log.Fatalf("failed to setup tracing: %v", err)
	}
	logShutdown, err := observability.SetupLogExport(ctx, exportCfg)
	if err != nil {
		log.Fatalf("failed to setup log export: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.OtelEndpoint != "")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	tracer := tp.Tracer(observability.ServiceName)

	// Store
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	logger.Info("connected to store", zap.String("driver", cfg.StoreDriver))

	guard, closeGuard, err := storage.OpenGuard(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open submission guard", zap.Error(err))
	}
	if cfg.RedisAddr != "" {
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Movement journal, optionally mirrored to Kafka
	var movements port.MovementLogger = store
	var publisher *messaging.MovementPublisher
	if cfg.KafkaBroker != "" {
		publisher, err = messaging.NewKafkaMovementPublisher(cfg.KafkaBroker, cfg.KafkaMovementTopic, tp)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		movements = messaging.NewTee(store, publisher)
		logger.Info("publishing movements", zap.String("topic", cfg.KafkaMovementTopic))
	}

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Secret:   []byte(cfg.AuthSecret),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		logger.Fatal("failed to create authenticator", zap.Error(err))
	}

	// Services
	reservations := service.NewReservationService(store, movements, logger, tracer)
	events := service.NewEventService(store, reservations, logger, cfg.Location())
	reconciler := service.NewReconciler(store, store, store, logger, tracer)

	// gRPC health
	grpcHandler := handler.NewGRPCHandler(store, logger)
	grpcHandler.CheckStore(ctx)
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpcHandler.Register(grpcServer)

	// Scheduled jobs
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReconcileSchedule, func() {
		runCtx, runCancel := context.WithTimeout(ctx, time.Minute)
		defer runCancel()
		if _, err := reconciler.Run(runCtx); err != nil {
			logger.Error("scheduled reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("invalid reconcile schedule", zap.String("schedule", cfg.ReconcileSchedule), zap.Error(err))
	}
	if _, err := scheduler.AddFunc(healthCheckSchedule, func() { grpcHandler.CheckStore(ctx) }); err != nil {
		logger.Fatal("invalid health schedule", zap.Error(err))
	}
	scheduler.Start()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP API
	httpHandler := handler.NewHTTPHandler(store, events, reservations, reconciler, guard, authenticator, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcHandler.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	<-scheduler.Stop().Done()
	logger.Info("scheduler stopped")

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close kafka publisher", zap.Error(err))
		}
	}
	if err := closeGuard(); err != nil {
		logger.Error("failed to close redis", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("failed to close store", zap.Error(err))
	}
	logger.Info("connections closed")

	if err := observability.JoinShutdown(traceShutdown, logShutdown)(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
