package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"colorbook-refiner/internal/app"
	"colorbook-refiner/internal/config"
	"colorbook-refiner/internal/logging"
	"colorbook-refiner/internal/refine"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(loadService)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errFellBack) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadService builds the service from the environment. Logs go to stderr so
// stdout carries only command output.
func loadService(ctx context.Context) (*refine.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Debug:       cfg.Debug,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return a.Service, cleanup, nil
}
