// Package main is the entrypoint for the Floodline management API: trigger
// creation and removal, manual activation, and phase inspection.
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

	"floodline/internal/api/handlers"
	"floodline/internal/config"
	"floodline/internal/core"
	"floodline/internal/db"
	"floodline/internal/observability"
	"floodline/internal/queue"
	"floodline/internal/scheduler"
	"floodline/internal/triggers"

	"github.com/go-chi/chi/v5"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Service+"-api", cfg.LogLevel)
	logger.Info("api initializing", "environment", cfg.Environment)

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

	tickProducer := queue.NewTickProducer(sqsClient, cfg.AWS.TickQueue, logger)
	dispatchProducer := queue.NewDispatchProducer(sqsClient, cfg.AWS.DispatchQueue, logger)

	jobRepo := db.NewRecurringJobRepository(pool)
	triggerRepo := db.NewTriggerRepository(pool)
	phaseRepo := db.NewPhaseRepository(pool)

	sched := scheduler.NewScheduler(scheduler.SchedulerDeps{
		Sender: tickProducer,
		Jobs:   jobRepo,
		Logger: logger,
	})

	service := triggers.NewService(triggers.ServiceDeps{
		Triggers:   triggerRepo,
		Phases:     phaseRepo,
		Activation: db.NewActivator(pool),
		Scheduler:  sched,
		Dispatch:   dispatchProducer,
		Logger:     logger,
	})

	server, err := core.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	triggerHandler := handlers.NewTriggerHandler(service, server.Validator, logger)
	phaseHandler := handlers.NewPhaseHandler(phaseRepo, logger)
	server.V1RouteRegistrars = []core.RouteRegistrar{
		func(r chi.Router) { triggerHandler.RegisterRoutes(r) },
		func(r chi.Router) { phaseHandler.RegisterRoutes(r) },
	}
	server.HealthProbes = []core.HealthProbe{db.NewHealthProbe(pool)}
	server.MountRoutes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("api listening", "port", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("api stopped")
}
