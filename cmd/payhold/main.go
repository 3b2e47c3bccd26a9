package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/application/services"
	"github.com/servilink/payhold/internal/clock"
	"github.com/servilink/payhold/internal/config"
	"github.com/servilink/payhold/internal/infrastructure/notify"
	"github.com/servilink/payhold/internal/infrastructure/persistence/postgres"
	"github.com/servilink/payhold/internal/infrastructure/processor"
	"github.com/servilink/payhold/internal/interfaces/rest/handlers"
	"github.com/servilink/payhold/internal/interfaces/rest/middleware"
	"github.com/servilink/payhold/internal/webhook"
	"github.com/servilink/payhold/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payhold service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	holdRepo := postgres.NewHoldRepository(db)
	eventRepo := postgres.NewEventRepository(db)

	processorClient := processor.NewProcessorClient(cfg.Processor)
	retryClient := processor.NewRetryProcessorClient(processorClient, cfg.Retry)

	var notifier application.Notifier = notify.NewNoopNotifier()
	if cfg.Notifier.BaseURL != "" {
		timeout := cfg.Notifier.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		notifier = notify.NewHTTPNotifier(cfg.Notifier.BaseURL, timeout, logger)
	}

	engine := services.NewHoldEngine(
		holdRepo,
		retryClient,
		notifier,
		clock.NewSystem(),
		cfg.Holds,
		logger,
	)

	reconciler := webhook.NewReconciler(engine, eventRepo, cfg.Webhook.SigningSecret, logger)

	h := handlers.NewHandlers(engine, reconciler, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	handler := middleware.Recovery(logger)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweeper := worker.NewExpirySweeper(
		holdRepo,
		engine,
		clock.NewSystem(),
		cfg.Sweeper.Interval,
		cfg.Sweeper.BatchSize,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go sweeper.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
