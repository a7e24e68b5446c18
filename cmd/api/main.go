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

	agentsrepo "estatebot_backend/internal/agents/repository"
	"estatebot_backend/internal/appointments"
	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/calendar"
	"estatebot_backend/internal/email"
	"estatebot_backend/internal/events"
	apphttp "estatebot_backend/internal/http"
	"estatebot_backend/internal/http/router"
	"estatebot_backend/internal/intent"
	"estatebot_backend/internal/leads"
	"estatebot_backend/internal/meeting"
	"estatebot_backend/internal/scheduler"
	"estatebot_backend/internal/scheduling"
	"estatebot_backend/internal/webhook"
	"estatebot_backend/internal/whatsapp"
	"estatebot_backend/platform/config"
	"estatebot_backend/platform/db"
	"estatebot_backend/platform/logger"
	"estatebot_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	schedClient, closeScheduler := initScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	redisClient := initDedupeRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	emailSender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	whatsappClient := whatsapp.NewClient(cfg, log)
	calendarClient := calendar.NewHTTPClient(cfg, log)
	meetingClient := meeting.NewHTTPClient(cfg, log)

	classifier, err := intent.NewGeminiClassifier(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize intent classifier", "error", err)
		panic("failed to initialize intent classifier: " + err.Error())
	}

	leadsModule := leads.NewModule(pool, eventBus, val)
	leadsRepo := leadsModule.Repository()
	agentsRepo := agentsrepo.New(pool)

	// Scheduling core: availability matching, booking transactions, and the
	// state reconciler that runs ahead of every dispatched action.
	var repairs scheduler.RepairScheduler
	var reminders scheduler.ReminderScheduler
	if schedClient != nil {
		repairs = schedClient
		reminders = schedClient
	}

	apptsRepo := apptsrepo.New(pool)
	matcher := scheduling.NewMatcher(calendarClient, apptsRepo, scheduling.SystemClock(), cfg, log)
	manager := scheduling.NewManager(leadsRepo, apptsRepo, calendarClient, meetingClient, repairs, reminders, eventBus, scheduling.SystemClock(), cfg.GetSlotDuration(), log)
	reconciler := scheduling.NewReconciler(leadsRepo, apptsRepo, eventBus, log)
	appointmentsModule := appointments.NewModule(pool, leadsRepo, manager)
	schedulingService := scheduling.New(leadsRepo, agentsRepo, apptsRepo, matcher, manager, reconciler, eventBus, log)

	webhookModule := webhook.NewModule(leadsRepo, schedulingService, classifier, whatsappClient, redisClient, eventBus, cfg, val, log)

	// Email notifier subscribes to booking lifecycle events (not HTTP-facing)
	email.NewNotifier(emailSender, leadsRepo, log).Register(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			appointmentsModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}
	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		// Stop accepting requests first, then let the in-flight
		// conversation workers finish before the process exits.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", "error", err)
		}
		webhookModule.Drain()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; meeting repair and reminder jobs disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initDedupeRedis(cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; webhook deduplication disabled")
		return nil
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; webhook deduplication disabled", "error", err)
		return nil
	}
	return redis.NewClient(opt)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
