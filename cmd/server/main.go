package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweenu/pretix-postfinance-sub000/internal/application/services"
	"github.com/sweenu/pretix-postfinance-sub000/internal/config"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/email"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/persistence"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/persistence/postgres"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/postfinance"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest/handlers"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest/middleware"
	"github.com/sweenu/pretix-postfinance-sub000/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting installment service",
		"port", cfg.Server.Port,
		"space_id", cfg.PostFinance.SpaceID,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	installmentRepo := postgres.NewInstallmentRepository(db.Pool)
	planRepo := postgres.NewPlanRepository(db.Pool)
	orderRepo := postgres.NewOrderRepository(db.Pool)

	gateway, err := postfinance.NewClient(cfg.PostFinance)
	if err != nil {
		logger.Error("failed to build gateway client", "error", err)
		os.Exit(1)
	}

	mailer := email.NewSMTPMailer(cfg.Mailer)

	checkoutService := services.NewCheckoutService(orderRepo, installmentRepo, planRepo, gateway, services.CheckoutConfig{
		BaseReturnURL:         cfg.Checkout.BaseReturnURL,
		CaptureMode:           cfg.Checkout.CaptureMode,
		AllowedPaymentMethods: cfg.Checkout.AllowedPaymentMethods,
	}, logger)
	planService := services.NewPlanService(planRepo, orderRepo, logger)
	installmentService := services.NewInstallmentService(installmentRepo, orderRepo, gateway, mailer, services.SweepConfig{
		GracePeriod: cfg.Sweep.GracePeriod,
		BatchSize:   cfg.Sweep.BatchSize,
	}, logger)

	if err := checkoutService.TestConnection(ctx); err != nil {
		logger.Warn("gateway space check failed", "error", err)
	}

	var verifier *postfinance.WebhookVerifier
	if cfg.PostFinance.WebhookSecret != "" {
		verifier, err = postfinance.NewWebhookVerifier(cfg.PostFinance.WebhookSecret)
		if err != nil {
			logger.Error("failed to build webhook verifier", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("webhook signature checks disabled, no webhook secret configured")
	}

	h := handlers.NewHandlers(
		checkoutService,
		planService,
		installmentService,
		verifier,
		cfg.PostFinance.SpaceID,
		logger,
	)

	handler := middleware.Recovery(logger)(h.Routes())
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	dueWorker := worker.NewDueWorker(installmentService, cfg.Sweep.Interval, logger)
	retryWorker := worker.NewRetryWorker(installmentService, cfg.Sweep.Interval, logger)
	graceWorker := worker.NewGraceWorker(installmentService, cfg.Sweep.Interval, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go dueWorker.Start(workerCtx)
	go retryWorker.Start(workerCtx)
	go graceWorker.Start(workerCtx)

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
