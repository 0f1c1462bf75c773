package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var allVars = []string{
	"PORT", "APP_ENV", "LOG_LEVEL", "USE_MOCK_DB", "DATABASE_DRIVER", "DATABASE_URL",
	"CLICKHOUSE_HOST", "CLICKHOUSE_PORT", "CLICKHOUSE_DATABASE", "CLICKHOUSE_USER",
	"CLICKHOUSE_PASSWORD", "CLICKHOUSE_USE_TLS", "TELEGRAM_BOT_TOKEN", "ALLOWED_USER_IDS",
	"WEBHOOK_MODE", "WEBHOOK_URL", "DATA_DIR", "OTEL_TRACES_EXPORTER",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allVars {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.UseMockDB)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, "store.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.ClickHouseHost)
	assert.Empty(t, cfg.TelegramToken)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, TracesNone, cfg.TracesExporter)
}

func TestLoadFromEnv_Full(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://bookshelf@localhost/bookshelf?sslmode=disable")
	t.Setenv("CLICKHOUSE_HOST", "ch.local")
	t.Setenv("CLICKHOUSE_PASSWORD", "secret")
	t.Setenv("CLICKHOUSE_USE_TLS", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("ALLOWED_USER_IDS", "1, 2,3")
	t.Setenv("WEBHOOK_MODE", "true")
	t.Setenv("WEBHOOK_URL", "https://bookshelf.example.com/")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 9000, cfg.ClickHousePort)
	assert.Equal(t, "default", cfg.ClickHouseDatabase)
	assert.Equal(t, "default", cfg.ClickHouseUser)
	assert.Equal(t, "secret", cfg.ClickHousePassword)
	assert.True(t, cfg.ClickHouseUseTLS)
	assert.Equal(t, []int64{1, 2, 3}, cfg.AllowedUserIDs)
	assert.True(t, cfg.WebhookMode)
	assert.Equal(t, "https://bookshelf.example.com", cfg.WebhookURL)
	assert.Equal(t, TracesStdout, cfg.TracesExporter)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestLoadFromEnv_Errors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad port", map[string]string{"PORT": "http"}, "PORT"},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad traces exporter", map[string]string{"OTEL_TRACES_EXPORTER": "jaeger"}, "OTEL_TRACES_EXPORTER"},
		{"bad driver", map[string]string{"DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"bad clickhouse port", map[string]string{"CLICKHOUSE_HOST": "ch", "CLICKHOUSE_PORT": "x"}, "CLICKHOUSE_PORT"},
		{"token without users", map[string]string{"TELEGRAM_BOT_TOKEN": "t"}, "ALLOWED_USER_IDS"},
		{"bad user id", map[string]string{"TELEGRAM_BOT_TOKEN": "t", "ALLOWED_USER_IDS": "1,abc"}, "ALLOWED_USER_IDS"},
		{"webhook without url", map[string]string{"TELEGRAM_BOT_TOKEN": "t", "ALLOWED_USER_IDS": "1", "WEBHOOK_MODE": "true"}, "WEBHOOK_URL"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
