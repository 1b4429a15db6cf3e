package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/api"
	"github.com/matchpoint/notify-engine/internal/channel"
	"github.com/matchpoint/notify-engine/internal/config"
	"github.com/matchpoint/notify-engine/internal/db"
	"github.com/matchpoint/notify-engine/internal/dispatch"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/executor"
	"github.com/matchpoint/notify-engine/internal/jobs"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/queue"
	"github.com/matchpoint/notify-engine/internal/ratelimiter"
	"github.com/matchpoint/notify-engine/internal/repository"
	"github.com/matchpoint/notify-engine/internal/scheduler"
	"github.com/matchpoint/notify-engine/internal/tracking"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- repositories ----
	jobRepo := repository.NewPgJobRepository(pool)
	queueRepo := repository.NewPgQueueRepository(pool)
	templateRepo := repository.NewPgTemplateRepository(pool)
	trackingRepo := repository.NewPgTrackingRepository(pool)
	subRepo := repository.NewPgSubscriptionRepository(pool)

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	limiter := ratelimiter.New(cfg.RateLimit)
	collector := tracking.NewCollector(trackingRepo, queueRepo, m, logger)

	adapters := []channel.Adapter{
		channel.NewEmailAdapter(channel.BuildProviders(cfg.EmailProviders, cfg.ProviderTimeout), logger),
		channel.NewSMSAdapter(channel.BuildProviders(cfg.SMSProviders, cfg.ProviderTimeout), logger),
		channel.NewPushAdapter(channel.BuildProviders(cfg.PushProviders, cfg.ProviderTimeout), subRepo, logger),
	}

	dispatcher := dispatch.New(
		dispatch.Config{
			BatchSize:       cfg.DispatchBatch,
			Workers:         cfg.DispatchWorkers,
			MaxAttempts:     cfg.MaxAttempts,
			TrackingBaseURL: cfg.TrackingBaseURL,
		},
		queueRepo, templateRepo, adapters, limiter, queue.NewBuffer(), m, logger,
	)

	// ---- job scheduling ----
	registry := jobs.NewRegistry()
	registry.Bind(domain.JobKindDispatch, jobs.NewDispatchHandler(dispatcher))
	registry.Bind(domain.JobKindRetention, jobs.NewRetentionHandler(queueRepo, trackingRepo, cfg.RetentionDays, logger))
	registry.Bind(domain.JobKindDigest, jobs.NewDigestHandler(queueRepo, logger))

	exec := executor.New(jobRepo, m, logger)
	sched := scheduler.New(jobRepo, registry, exec, cfg.TickInterval, cfg.ErrorBackoff, logger)

	if err := sched.RegisterStatic(ctx, jobs.StaticDefinitions(cfg.DispatchInterval, cfg.RetentionDays)); err != nil {
		logger.Fatal("failed to register static jobs", zap.Error(err))
	}

	// Context for all background goroutines; cancelled on shutdown signal.
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()

	var schedDone sync.WaitGroup
	schedDone.Add(1)
	go func() {
		defer schedDone.Done()
		sched.Run(schedCtx)
	}()

	// ---- HTTP server ----
	router := api.NewRouter(queueRepo, jobRepo, subRepo, sched, collector, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the scheduler loop; it waits for in-flight jobs itself.
	cancelSched()
	schedDone.Wait()

	logger.Info("server stopped cleanly")
}
