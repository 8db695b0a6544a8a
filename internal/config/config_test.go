package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://www.vmgd.gov.vu/vmgd/index.php", cfg.Scraper.BaseURL)
	assert.Equal(t, "vmgd-api/"+Version, cfg.Scraper.UserAgent)
	assert.Equal(t, 15*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, 3, cfg.Scraper.MaxConcurrentFetches)
	assert.False(t, cfg.Scraper.UseCache)
	assert.Empty(t, cfg.Scraper.Sessions)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_NAME", "weather")
	t.Setenv("SCRAPER_TIMEOUT", "5s")
	t.Setenv("SCRAPER_SESSIONS", "forecast_general, warning_marine")
	t.Setenv("SCRAPER_MIN_SESSION_INTERVAL", "10m")
	t.Setenv("LOGGING_LEVEL", "DEBUG")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "weather", cfg.Database.Database)
	assert.Equal(t, 5*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, []string{"forecast_general", "warning_marine"}, cfg.Scraper.Sessions)
	assert.Equal(t, 10*time.Minute, cfg.Scraper.MinSessionInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_CacheRequiresDebug(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCRAPER_USE_CACHE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Scraper.UseCache)

	t.Setenv("SCRAPER_DEBUG", "true")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Scraper.UseCache)
}

func TestConfig_Validate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad base url", func(c *Config) { c.Scraper.BaseURL = "not a url" }},
		{"zero timeout", func(c *Config) { c.Scraper.Timeout = 0 }},
		{"no fetch workers", func(c *Config) { c.Scraper.MaxConcurrentFetches = 0 }},
		{"missing errors dir", func(c *Config) { c.Scraper.ErrorsDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_ComponentSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_PASSWORD", "secret")
	t.Setenv("SCRAPER_RATE_LIMIT", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	db := cfg.Database.Postgres()
	assert.Equal(t, "secret", db.Password)
	assert.Equal(t, "vmgd", db.Database)
	assert.Equal(t, 10, db.MaxOpenConns)

	fetcher := cfg.Scraper.Fetcher()
	assert.Equal(t, cfg.Scraper.BaseURL, fetcher.BaseURL)
	assert.Equal(t, "vmgd-api/"+Version, fetcher.UserAgent)
	assert.InDelta(t, 0.5, fetcher.RateLimit, 1e-9)
	assert.False(t, fetcher.UseCache)
}
