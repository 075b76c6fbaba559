package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/coopdesk/internal/api/http"
	"github.com/spec-kit/coopdesk/internal/api/http/handlers"
	"github.com/spec-kit/coopdesk/internal/auth"
	"github.com/spec-kit/coopdesk/internal/config"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/wire"
	"github.com/spec-kit/coopdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := wire.Build(ctx, cfg, logger, wire.Options{})
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer app.Close()

	if cfg.Security.InsecureMode {
		logger.Warn("SECURITY_INSECURE_MODE enabled; every caller sees the whole hierarchy")
	}

	outbox := worker.NewNotificationWorker(app.Repos.Outbox, app.Dispatcher, worker.NotificationWorkerConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		ClaimLease:   cfg.Outbox.ClaimLease,
	})
	outbox.Metrics = app.Metrics
	outbox.Logger = logger
	outboxDone := make(chan struct{})
	go func() {
		defer close(outboxDone)
		outbox.Start(ctx)
	}()

	var scheduler *worker.SweepScheduler
	if cfg.Escalation.SweepEnabled {
		scheduler, err = worker.NewSweepScheduler(cfg.Escalation.SweepSchedule, cfg.App.Location(), app.Sweep, logger)
		if err != nil {
			logger.Fatal("failed to schedule sweep", zap.Error(err))
		}
		scheduler.Start()
	}

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, app.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, app.Postgres, app.Redis),
		Metrics:        handlers.NewMetricsHandler(app.Metrics),
		Tickets:        handlers.NewTicketsHandler(app.Tickets),
		Sweep:          handlers.NewSweepHandler(app.Sweep, cfg.Escalation.WebhookSecretHash, logger),
		Settings:       handlers.NewSettingsHandler(app.Settings),
		Alerts:         handlers.NewAlertsHandler(app.Alerts),
		AuthMiddleware: auth.NewAuthMiddleware(app.Tokens),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	select {
	case <-outboxDone:
	case <-shutdownCtx.Done():
		logger.Warn("notification worker still draining at shutdown; claimed events will be redelivered after the lease")
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
