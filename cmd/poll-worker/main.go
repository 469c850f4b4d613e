// Package main is the entrypoint for the poll worker: the SQS consumer that
// executes recurring-job ticks. Each tick runs one criteria check against a
// hydrological feed, fires the trigger on a danger reading, and arms the next
// tick in the chain. A Prometheus metrics server runs alongside the consumer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"floodline/internal/config"
	"floodline/internal/db"
	"floodline/internal/external"
	"floodline/internal/observability"
	"floodline/internal/queue"
	"floodline/internal/scheduler"
	"floodline/internal/sources"
	"floodline/internal/triggers"
	"floodline/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Service+"-poll-worker", cfg.LogLevel)
	logger.Info("poll worker initializing", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqsClient, err := queue.NewSQSClient(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to create sqs client", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	tickProducer := queue.NewTickProducer(sqsClient, cfg.AWS.TickQueue, logger)
	dispatchProducer := queue.NewDispatchProducer(sqsClient, cfg.AWS.DispatchQueue, logger)
	notifProducer := queue.NewNotificationProducer(sqsClient, cfg.AWS.NotificationQueue, metrics, logger)

	// Feed adapters carry no internal retries; the executor owns the retry
	// contract for transient feed failures.
	httpClient := &http.Client{Timeout: cfg.Feeds.FetchTimeout}
	location := cfg.Location()
	sourceDataRepo := db.NewSourceDataRepository(pool)

	dhm := sources.NewDHMAdapter(sources.DHMConfig{
		Client: external.NewBaseClient(httpClient, "dhm-feed",
			external.NoRetryPolicy(), "Floodline-Poller/1.0", types.ErrCodeUpstreamFeed),
		BaseURL:  cfg.Feeds.DHMBaseURL,
		Store:    sourceDataRepo,
		Emitter:  notifProducer,
		Timezone: location,
		Logger:   logger,
	})
	glofas := sources.NewGlofasAdapter(sources.GlofasConfig{
		Client: external.NewBaseClient(httpClient, "glofas-feed",
			external.NoRetryPolicy(), "Floodline-Poller/1.0", types.ErrCodeUpstreamFeed),
		BaseURL:  cfg.Feeds.GlofasBaseURL,
		Store:    sourceDataRepo,
		Emitter:  notifProducer,
		Timezone: location,
		Logger:   logger,
	})

	service := triggers.NewService(triggers.ServiceDeps{
		Triggers:   db.NewTriggerRepository(pool),
		Phases:     db.NewPhaseRepository(pool),
		Activation: db.NewActivator(pool),
		Scheduler: scheduler.NewScheduler(scheduler.SchedulerDeps{
			Sender: tickProducer,
			Jobs:   db.NewRecurringJobRepository(pool),
			Logger: logger,
		}),
		Dispatch: dispatchProducer,
		Logger:   logger,
	})

	executor := scheduler.NewExecutor(scheduler.ExecutorDeps{
		Config:    cfg.Scheduler,
		Jobs:      db.NewRecurringJobRepository(pool),
		History:   db.NewJobHistoryRepository(pool),
		Adapters:  sources.NewRegistry(dhm, glofas),
		Activator: service,
		Sender:    tickProducer,
		Metrics:   metrics,
		Logger:    logger,
	})

	handler := func(ctx context.Context, body string) error {
		var msg types.TickMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			logger.ErrorContext(ctx, "dropping malformed tick message", "error", err)
			return nil
		}
		return executor.HandleTick(ctx, msg)
	}
	consumer := queue.NewConsumer(sqsClient, cfg.AWS.TickQueue, handler, logger)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("poll worker running",
		"tick_queue", cfg.AWS.TickQueue,
		"metrics_port", cfg.Server.MetricsPort,
	)
	if err := g.Wait(); err != nil {
		logger.Error("poll worker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("poll worker stopped")
}
