package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"apiwatch/internal/config"
	"apiwatch/internal/domain"
	"apiwatch/internal/httpapi"
	"apiwatch/internal/httpapi/middleware"
	"apiwatch/internal/logging"
	"apiwatch/internal/metrics"
	"apiwatch/internal/monitor"
	"apiwatch/internal/notify"
	"apiwatch/internal/probe"
	"apiwatch/internal/repo"
	"apiwatch/internal/repo/memory"
	"apiwatch/internal/repo/postgres"
	"apiwatch/internal/repo/sqlite"
	"apiwatch/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mets := metrics.New(reg)

	var channels notify.Multi
	if tg := notify.NewTelegram(cfg.TelegramToken); tg != nil {
		channels = append(channels, tg)
	}
	if sl := notify.NewSlack(cfg.SlackWebhook); sl != nil {
		channels = append(channels, sl)
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels configured, alerts will only be logged")
	}

	announcer := &monitor.Announcer{
		Subs:        store,
		Channels:    channels,
		AdminChatID: cfg.AdminChatID,
		Log:         logger,
	}
	checker := &probe.RetryChecker{
		Inner:   probe.NewTargetChecker(),
		Retries: cfg.RequestRetries,
		Backoff: cfg.RequestBackoff,
	}
	tracker := &monitor.Tracker{
		Store:             store,
		Announcer:         announcer,
		Metrics:           mets,
		Log:               logger,
		FailureThreshold:  cfg.FailureThreshold,
		RecoveryThreshold: cfg.RecoveryThreshold,
	}
	detector := &monitor.Detector{
		Store:       store,
		Announcer:   announcer,
		Metrics:     mets,
		Log:         logger,
		Sensitivity: cfg.AnomalySensitivity,
		PctFactor:   cfg.AnomalyPctFactor,
		M:           cfg.AnomalyM,
		N:           cfg.AnomalyN,
		Cooldown:    cfg.AnomalyCooldown,
		Now:         time.Now,
	}
	mon := &monitor.Monitor{
		Store:     store,
		Checker:   checker,
		Tracker:   tracker,
		Detector:  detector,
		Log:       logger,
		MLEnabled: cfg.MLEnabled,
		Now:       time.Now,
	}

	sched := scheduler.New(mon.RunCheck, logger)
	defer sched.Stop()

	active, err := store.ListActive(ctx)
	if err != nil {
		logger.Fatal("listing targets", zap.Error(err))
	}
	for _, t := range active {
		sched.Schedule(ctx, t)
	}
	logger.Info("monitoring started", zap.Int("targets", len(active)))

	if cfg.MLEnabled {
		recomputer := &monitor.Recomputer{
			Store:   store,
			Metrics: mets,
			Log:     logger,
			Window:  cfg.MLWindow,
			Now:     time.Now,
		}
		scheduler.Every(ctx, cfg.MLComputeInterval, "baseline_recompute", logger, recomputer.RunOnce)
	}

	maint := &scheduler.Maintenance{
		Store:         store,
		Announcer:     announcer,
		Channels:      channels,
		AdminChatID:   cfg.AdminChatID,
		Log:           logger,
		ReminderEvery: cfg.DowntimeReminder,
		RetentionDays: cfg.RetentionDays,
		Now:           time.Now,
	}
	scheduler.Every(ctx, 5*time.Minute, "reminder_sweep", logger, maint.RunReminderSweep)
	scheduler.Every(ctx, 24*time.Hour, "retention_purge", logger, maint.RunRetention)
	scheduler.DailyAt(ctx, cfg.DigestHour, "daily_digest", logger, maint.RunDigest)

	api := httpapi.NewServer(logger, store, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), httpapi.Hooks{
		Schedule:   func(t *domain.Target) { sched.Schedule(ctx, t) },
		Unschedule: sched.Unschedule,
	})
	keys := middleware.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.RateLimitRPM),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case "memory":
		return memory.New(), func() {}, nil
	case "sqlite":
		st, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "postgres":
		st, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
}
