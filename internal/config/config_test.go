package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"LOG_LEVEL", "DEBUG", "PREFER_IPV4", "HTTP_TIMEOUT_SECONDS", "REQUEST_TIMEOUT_SECONDS",
	"MAX_CONCURRENT", "WEB_ADDR", "COMPLETION_PROVIDER", "MOCK_MODE", "COMPLETION_TIMEOUT_SECONDS",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "GEMINI_API_KEY", "GEMINI_BASE_URL",
	"GEMINI_API_VERSION", "GEMINI_MODEL", "REDIS_URL", "COMPLETION_CACHE_TTL_SECONDS", "TELEGRAM_BOT_TOKEN",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.PreferIPv4)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 15*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, ProviderNone, cfg.CompletionProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, "v1beta", cfg.GeminiAPIVersion)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.CompletionEnabled())
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("MAX_CONCURRENT", "9")
	t.Setenv("COMPLETION_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("OPENAI_MODEL", "gpt-x")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("PREFER_IPV4", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9, cfg.MaxConcurrent)
	assert.Equal(t, ProviderOpenAI, cfg.CompletionProvider)
	assert.Equal(t, "sk-1", cfg.OpenAIAPIKey)
	assert.Equal(t, "gpt-x", cfg.OpenAIModel)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.False(t, cfg.PreferIPv4)
	assert.True(t, cfg.CompletionEnabled())
	assert.NoError(t, cfg.RequireTelegram())
}

func TestLoadClampsBounds(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "-5")
	t.Setenv("COMPLETION_TIMEOUT_SECONDS", "0")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
}

func TestLoadProviderValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "openai without key", env: map[string]string{"COMPLETION_PROVIDER": "openai"}, wantErr: "OPENAI_API_KEY"},
		{name: "gemini without key", env: map[string]string{"COMPLETION_PROVIDER": "gemini"}, wantErr: "GEMINI_API_KEY"},
		{name: "unknown provider", env: map[string]string{"COMPLETION_PROVIDER": "claude"}, wantErr: "unknown COMPLETION_PROVIDER"},
		{name: "mock mode skips key", env: map[string]string{"COMPLETION_PROVIDER": "gemini", "MOCK_MODE": "true"}},
		{name: "gemini with key", env: map[string]string{"COMPLETION_PROVIDER": "gemini", "GEMINI_API_KEY": "g"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.env["MOCK_MODE"] != "true", cfg.CompletionEnabled())
		})
	}
}
