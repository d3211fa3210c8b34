// Package app wires configuration into a ready refine.Service. It is shared
// by the web server, the bot and the CLI.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"colorbook-refiner/internal/completion"
	"colorbook-refiner/internal/config"
	"colorbook-refiner/internal/gemini"
	"colorbook-refiner/internal/gpt"
	"colorbook-refiner/internal/httpclient"
	"colorbook-refiner/internal/refine"
)

const cacheKeyPrefix = "colorbook-refiner"

type App struct {
	Service *refine.Service
	Logger  *zap.Logger

	closers []io.Closer
}

// New builds the service. A Redis URL that cannot be reached is logged and
// the completer runs uncached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Logger: logger}

	completer, err := a.newCompleter(cfg)
	if err != nil {
		return nil, err
	}

	if completer != nil && cfg.RedisURL != "" {
		client, err := completion.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("completion cache disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, client)
			completer = completion.NewCached(completer, completion.NewRedisStore(client, cacheKeyPrefix), completion.CacheOptions{
				TTL:    cfg.CacheTTL,
				Logger: logger.Named("cache"),
			})
			logger.Info("completion cache enabled", zap.Duration("ttl", cfg.CacheTTL))
		}
	}

	a.Service = refine.NewService(refine.Config{
		Completer:          completer,
		CompletionProvider: cfg.CompletionProvider,
		CompletionTimeout:  cfg.CompletionTimeout,
		MockMode:           cfg.MockMode,
		Logger:             logger.Named("refine"),
	})

	logger.Info("refine service ready",
		zap.String("provider", cfg.CompletionProvider),
		zap.Bool("mock_mode", cfg.MockMode),
		zap.Bool("completion_enabled", a.Service.CompletionEnabled()),
	)
	return a, nil
}

func (a *App) newCompleter(cfg config.Config) (completion.Completer, error) {
	if cfg.MockMode {
		return nil, nil
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Logger:     a.Logger.Named("http"),
	})

	switch cfg.CompletionProvider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		return gpt.New(gpt.Options{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: httpClient,
			Logger:     a.Logger.Named("openai"),
		}), nil
	case config.ProviderGemini:
		return gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			Model:      cfg.GeminiModel,
			HTTPClient: httpClient,
			Logger:     a.Logger.Named("gemini"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.CompletionProvider)
	}
}

func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
