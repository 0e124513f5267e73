// Package main запускает HTTP-сервер сервиса учёта АЗС.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pumpstation-system/internal/alert"
	"github.com/mmeshcher/pumpstation-system/internal/config"
	"github.com/mmeshcher/pumpstation-system/internal/handler"
	"github.com/mmeshcher/pumpstation-system/internal/middleware"
	"github.com/mmeshcher/pumpstation-system/internal/repository"
	"github.com/mmeshcher/pumpstation-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	threshold, err := decimal.NewFromString(cfg.VarianceAlertThreshold)
	if err != nil {
		sugar.Fatalw("invalid variance alert threshold", "value", cfg.VarianceAlertThreshold, "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var alertClient *alert.Client
	if cfg.AlertWebhookAddress != "" {
		alertClient = alert.NewClient(cfg.AlertWebhookAddress)
	}

	svc := service.NewService(repo, alertClient, threshold)
	defer svc.Close()

	secret := cfg.AuthSecret
	if secret == "" {
		secret = "pumpstation-secret"
	}
	authMiddleware := middleware.NewAuthMiddleware(secret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового процесса оповещений о расхождениях
	g.Go(func() error {
		svc.StartVarianceAlerts(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting pumpstation server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
