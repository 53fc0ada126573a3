package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"journal-notify/internal/channel"
	"journal-notify/internal/config"
	"journal-notify/internal/delivery"
	"journal-notify/internal/domain"
	"journal-notify/internal/journalapi"
	"journal-notify/internal/observability/logging"
	"journal-notify/internal/observability/metrics"
	"journal-notify/internal/ratelimit"
	"journal-notify/internal/retry"
	"journal-notify/internal/schedule"
	"journal-notify/internal/store"
	httptransport "journal-notify/internal/transport/http"
	"journal-notify/internal/weekly"
)

func main() {
	_ = godotenv.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "notifyd",
		Environment: os.Getenv("ENV"),
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("gorm open: %v", err)
	}

	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	metrics.MustRegister()

	senders := map[domain.Channel]channel.PushSender{
		domain.ChannelFCM: channel.NewFCMClient(cfg.FCMEndpoint, cfg.FCMServerKey),
	}
	if cfg.APNsPrivateKey != "" {
		apns, err := channel.NewAPNsClient(cfg.APNsHost, cfg.APNsTopic, cfg.APNsKeyID, cfg.APNsTeamID, cfg.APNsPrivateKey)
		if err != nil {
			log.Fatalf("apns client: %v", err)
		}
		senders[domain.ChannelAPNs] = apns
	} else {
		logger.Warn("apns disabled: no signing key configured")
	}

	email := channel.NewEmailSender(cfg.EmailBaseURL, cfg.EmailAPIKey, cfg.EmailFrom)
	journal := journalapi.NewClient(cfg.JournalBaseURL, cfg.JournalAPIKey)
	limiter := ratelimit.New(st.History(), cfg.DailyMax, cfg.TypeCooldown, cfg.TypeCooldownMax)

	pipeline := delivery.NewPipeline(st, journal, limiter, senders, logger)
	pipeline.RetryMaxAttempts = cfg.RetryMaxAttempts
	pipeline.RetryDelay = retry.BackoffFor(0)

	processor := retry.NewProcessor(st.Retries(), pipeline, cfg.RetryBatchSize, cfg.RetryWorkers, logging.Worker(logger, "retry"))
	evaluator := schedule.NewEvaluator(st.Rules(), journal, journal, pipeline, cfg.ScheduleWindow, cfg.DefaultTimezone, logging.Worker(logger, "scheduled"))
	tracker := weekly.NewTracker(st.Progress(), journal, cfg.EligibleMin, cfg.WeeklyReportDelay, cfg.DefaultTimezone, logging.Worker(logger, "progress"))
	reportWorker := weekly.NewReportWorker(st.Progress(), st.Reports(), email, journal, cfg.WeeklyMaxRetries, cfg.WeeklyRetryDelay, cfg.WeeklyBatchSize, logging.Worker(logger, "weekly-report"))
	reminderWorker := weekly.NewReminderWorker(st.Progress(), email, journal, cfg.EligibleMin, cfg.WeeklyMaxRetries, cfg.WeeklyBatchSize, cfg.DefaultTimezone, logging.Worker(logger, "weekly-reminder"))

	sweeps := map[string]httptransport.SweepFunc{
		"retry": func(ctx context.Context) (any, error) {
			return processor.Sweep(ctx)
		},
		"scheduled": func(ctx context.Context) (any, error) {
			return evaluator.Sweep(ctx)
		},
		"progress": func(ctx context.Context) (any, error) {
			return tracker.Sweep(ctx)
		},
		"weekly-report": func(ctx context.Context) (any, error) {
			return reportWorker.Sweep(ctx)
		},
		"weekly-reminder": func(ctx context.Context) (any, error) {
			return reminderWorker.Sweep(ctx)
		},
		"unstick": func(ctx context.Context) (any, error) {
			released, err := st.Progress().ReleaseStuckClaims(ctx, time.Now().UTC(), cfg.ClaimTTL)
			return map[string]int64{"released": released}, err
		},
		"prune-history": func(ctx context.Context) (any, error) {
			pruned, err := st.History().PruneOlderThan(ctx, time.Now().UTC().Add(-cfg.HistoryRetention))
			return map[string]int64{"pruned": pruned}, err
		},
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Store:       st,
		Pipeline:    pipeline,
		SweepSecret: cfg.SweepSecret,
		CORSOrigins: cfg.CORSOrigins,
		Sweeps:      sweeps,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("notification service listening", "addr", cfg.Addr)
	log.Fatal(srv.ListenAndServe())
}
