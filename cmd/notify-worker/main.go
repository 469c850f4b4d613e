// Package main is the entrypoint for the notify worker: the SQS consumer
// that delivers threshold notification events to the configured webhook
// endpoint.
package main

import (
	"context"
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
	"floodline/internal/external"
	"floodline/internal/notifications"
	"floodline/internal/observability"
	"floodline/internal/queue"
	"floodline/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Service+"-notify-worker", cfg.LogLevel)
	logger.Info("notify worker initializing", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqsClient, err := queue.NewSQSClient(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to create sqs client", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	// The webhook client retries internally; failures beyond its policy fall
	// back to SQS redelivery.
	httpClient := &http.Client{Timeout: cfg.Webhook.DefaultTimeout}
	webhookClient := external.NewBaseClient(httpClient, "notify-webhook",
		external.DefaultRetryPolicy(), cfg.Webhook.UserAgent, types.ErrCodeUpstreamWebhook)

	channel := notifications.NewWebhookChannel(webhookClient, cfg.Webhook, metrics, logger)
	consumer := queue.NewConsumer(sqsClient, cfg.AWS.NotificationQueue, channel.Handler(), logger)

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

	logger.Info("notify worker running",
		"notification_queue", cfg.AWS.NotificationQueue,
		"metrics_port", cfg.Server.MetricsPort,
	)
	if err := g.Wait(); err != nil {
		logger.Error("notify worker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("notify worker stopped")
}
