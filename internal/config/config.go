package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	TelegramToken string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	WebAddr           string
	MaxConcurrent     int
	RequestTimeout    time.Duration
	HTTPTimeout       time.Duration
	CompletionTimeout time.Duration

	CompletionProvider string
	MockMode           bool

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiModel      string

	RedisURL string
	CacheTTL time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		LogLevel:           strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:              getEnvBool("DEBUG", false),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		WebAddr:            getEnv("WEB_ADDR", ":8080"),
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
		CompletionTimeout:  time.Duration(getEnvInt("COMPLETION_TIMEOUT_SECONDS", 15)) * time.Second,
		CompletionProvider: strings.ToLower(getEnv("COMPLETION_PROVIDER", ProviderNone)),
		MockMode:           getEnvBool("MOCK_MODE", false),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion:   getEnv("GEMINI_API_VERSION", "v1beta"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		CacheTTL:           time.Duration(getEnvInt("COMPLETION_CACHE_TTL_SECONDS", 86400)) * time.Second,
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	switch cfg.CompletionProvider {
	case ProviderNone:
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" && !cfg.MockMode {
			return Config{}, errors.New("OPENAI_API_KEY is required when COMPLETION_PROVIDER=openai")
		}
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" && !cfg.MockMode {
			return Config{}, errors.New("GEMINI_API_KEY is required when COMPLETION_PROVIDER=gemini")
		}
	default:
		return Config{}, fmt.Errorf("unknown COMPLETION_PROVIDER %q (want openai, gemini or none)", cfg.CompletionProvider)
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	return cfg, nil
}

// RequireTelegram is checked by the bot only; the web server and CLI run
// without a token.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func (c Config) CompletionEnabled() bool {
	return c.CompletionProvider != ProviderNone && !c.MockMode
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
