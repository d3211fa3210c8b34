package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"colorbook-refiner/internal/app"
	"colorbook-refiner/internal/config"
	"colorbook-refiner/internal/handlers"
	"colorbook-refiner/internal/httpclient"
	"colorbook-refiner/internal/logging"
	"colorbook-refiner/internal/session"
	"colorbook-refiner/internal/telegram"
)

const (
	sessionIdleTimeout = 24 * time.Hour
	pruneInterval      = time.Hour
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Debug: cfg.Debug})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}
	defer a.Close()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger.Named("telegram"),
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Fatal("telegram init failed", zap.Error(err))
	}

	sessions := session.NewStore(session.Options{})
	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Refiner:  a.Service,
		Sessions: sessions,
		Logger:   logger.Named("handlers"),
	})

	logger.Info("bot started", zap.String("username", tg.Username()))

	updates := tg.Updates(telegram.UpdatesOptions{Timeout: 30 * time.Second})
	defer tg.StopUpdates()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrent + 1)

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.Prune(sessionIdleTimeout); n > 0 {
					logger.Debug("pruned idle sessions", zap.Int("count", n))
				}
			}
		}
	})

loop:
	for {
		select {
		case <-gctx.Done():
			logger.Info("shutting down")
			break loop
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				stop()
				break loop
			}

			g.Go(func() error {
				reqCtx, cancel := context.WithTimeout(gctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", zap.Int("update_id", update.UpdateID), zap.Error(err))
				}
				return nil
			})
		}
	}

	_ = g.Wait()
}
