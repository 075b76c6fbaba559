// Package wire assembles the stores and services shared by the API server and coopctl.
package wire

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/auth"
	"github.com/spec-kit/coopdesk/internal/config"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/notify"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/persistence"
	"github.com/spec-kit/coopdesk/internal/repository"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
	"github.com/spec-kit/coopdesk/internal/service"
)

// App holds every long-lived collaborator.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	// Redis is nil when REDIS_ENABLED is false.
	Redis *persistence.Redis
	Repos *repository.Store

	Dispatcher    events.Dispatcher
	Tokens        *auth.TokenManager
	Escalation    *service.EscalationService
	Sweep         *service.SweepService
	Tickets       *service.TicketService
	Settings      *service.SettingsService
	Alerts        *service.AlertService
	Notifications *service.NotificationService
}

// Options tweaks Build.
type Options struct {
	// SkipMigrations leaves the schema alone even when POSTGRES_RUN_MIGRATIONS is set.
	SkipMigrations bool
}

// Build connects to the configured backends and wires the services. Without a
// Postgres DSN the in-memory store is used.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.Postgres = pg

	if pg.Enabled() {
		if cfg.Postgres.RunMigrations && !opts.SkipMigrations {
			if _, err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		a.Repos = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		a.Repos = memory.NewStore().Repositories()
	}

	if err := a.Repos.Settings.EnsureDefaults(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed system settings: %w", err)
	}

	var locker service.Locker
	var deduper notify.Deduper
	if cfg.Redis.Enabled {
		a.Redis = persistence.NewRedis(cfg.Redis, logger)
		locker = a.Redis
		deduper = notify.NewRedisDeduper(a.Redis.Client)
	}

	loc := cfg.App.Location()
	deadlines := service.NewDeadlineCalculator(a.Repos.Settings, loc, logger)
	visibility := service.NewVisibilityResolver(a.Repos.Organizations, cfg.Security)

	a.Escalation = service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:            a.Repos.Tickets,
		OrganizationRepo:      a.Repos.Organizations,
		EscalationSettingRepo: a.Repos.EscalationSettings,
		AuditRepo:             a.Repos.Audit,
		Deadlines:             deadlines,
		Metrics:               a.Metrics,
		Logger:                logger,
		MaxHops:               cfg.Escalation.MaxHops,
	})
	a.Sweep = service.NewSweepService(service.SweepDependencies{
		TicketRepo: a.Repos.Tickets,
		Escalation: a.Escalation,
		Locker:     locker,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	a.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:       a.Repos.Tickets,
		CityRepo:         a.Repos.Cities,
		OrganizationRepo: a.Repos.Organizations,
		AuditRepo:        a.Repos.Audit,
		Visibility:       visibility,
		Escalation:       a.Escalation,
		Deadlines:        deadlines,
		Logger:           logger,
	})
	a.Settings = service.NewSettingsService(service.SettingsDependencies{
		SettingsRepo:          a.Repos.Settings,
		EscalationSettingRepo: a.Repos.EscalationSettings,
		OrganizationRepo:      a.Repos.Organizations,
		Visibility:            visibility,
		Escalation:            a.Escalation,
		Logger:                logger,
	})
	a.Alerts = service.NewAlertService(a.Repos.Alerts, a.Repos.Audit, logger)

	a.Dispatcher = events.NewInMemoryDispatcher()
	a.Notifications = service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: a.Dispatcher,
		AgentRepo:  a.Repos.Agents,
		AlertRepo:  a.Repos.Alerts,
		Email:      notify.NewBrevoSender(cfg.Notification),
		Deduper:    deduper,
		Metrics:    a.Metrics,
		Logger:     logger,
		BaseURL:    cfg.App.BaseURL,
	})
	a.Notifications.RegisterHandlers()

	a.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	return a, nil
}

// Close releases backend connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.Postgres.Close()
}
