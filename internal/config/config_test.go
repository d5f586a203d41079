package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/tradechat/internal/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/tradechat")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.WsTokenTTL)
	assert.Equal(t, 30, cfg.RateLimit.MessageRequests)
	assert.Empty(t, cfg.Broker.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/tradechat")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_WS_TTL", "5m")
	t.Setenv("BROKER_DRIVER", "NATS")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("ALLOWED_ORIGINS", "example.com, *.example.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.WsTokenTTL)
	assert.Equal(t, "nats", cfg.Broker.Driver)
	assert.Equal(t, "nats://localhost:4222", cfg.Broker.NATSURL)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DBURL:          "postgres://localhost/tradechat",
			JWTSecret:      testSecret,
			AccessTokenTTL: time.Hour,
			WsTokenTTL:     time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing_db_url", func(c *Config) { c.DBURL = "" }, true},
		{"missing_secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"short_secret", func(c *Config) { c.JWTSecret = "short" }, true},
		{"nats_without_url", func(c *Config) { c.Broker.Driver = "nats" }, true},
		{"redis_without_addr", func(c *Config) { c.Broker.Driver = "redis" }, true},
		{"unknown_driver", func(c *Config) { c.Broker.Driver = "kafka" }, true},
		{"zero_ttl", func(c *Config) { c.WsTokenTTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() error = %v", err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing_file_is_silent", func(t *testing.T) {
		var buf bytes.Buffer
		loadDotEnv(logging.New(logging.Config{Level: "debug"}, &buf), filepath.Join(dir, "missing.env"))
		assert.Empty(t, buf.String())
	})

	t.Run("loads_values", func(t *testing.T) {
		path := filepath.Join(dir, "values.env")
		require.NoError(t, os.WriteFile(path, []byte("TRADECHAT_TEST_VALUE=from-dotenv\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("TRADECHAT_TEST_VALUE") })

		var buf bytes.Buffer
		loadDotEnv(logging.New(logging.Config{Level: "debug"}, &buf), path)
		assert.Empty(t, buf.String())
		assert.Equal(t, "from-dotenv", os.Getenv("TRADECHAT_TEST_VALUE"))
	})

	t.Run("unreadable_file_is_logged", func(t *testing.T) {
		path := filepath.Join(dir, "adir.env")
		require.NoError(t, os.Mkdir(path, 0o700))

		var buf bytes.Buffer
		loadDotEnv(logging.New(logging.Config{Level: "debug"}, &buf), path)
		assert.Contains(t, buf.String(), "failed to load .env file")
	})
}
