// Package config loads service configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/pkg/database"
)

// Version is reported in the scraper User-Agent and in logs.
const Version = "1.0.0"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Scraper  ScraperConfig
}

// ServerConfig configures the operator HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string
}

// ScraperConfig configures the fetcher and the session orchestrator.
type ScraperConfig struct {
	BaseURL              string
	UserAgent            string
	Timeout              time.Duration
	RateLimit            float64
	RateBurst            int
	Debug                bool
	UseCache             bool
	CacheDir             string
	ErrorsDir            string
	MaxConcurrentFetches int
	MinSessionInterval   time.Duration
	Sessions             []string
}

// Postgres returns the connection settings for pkg/database.
func (c DatabaseConfig) Postgres() *database.Config {
	return &database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// Fetcher returns the page fetcher settings.
func (c ScraperConfig) Fetcher() scraper.FetcherConfig {
	return scraper.FetcherConfig{
		BaseURL:   c.BaseURL,
		UserAgent: c.UserAgent,
		Timeout:   c.Timeout,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
		UseCache:  c.UseCache,
		CacheDir:  c.CacheDir,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "vmgd")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	v.SetDefault("logging.level", "info")

	v.SetDefault("scraper.base_url", "https://www.vmgd.gov.vu/vmgd/index.php")
	v.SetDefault("scraper.user_agent", "vmgd-api/"+Version)
	v.SetDefault("scraper.timeout", "15s")
	v.SetDefault("scraper.rate_limit", 2.0)
	v.SetDefault("scraper.rate_burst", 3)
	v.SetDefault("scraper.debug", false)
	v.SetDefault("scraper.use_cache", false)
	v.SetDefault("scraper.cache_dir", "data/vmgd")
	v.SetDefault("scraper.errors_dir", "data/errors")
	v.SetDefault("scraper.max_concurrent_fetches", 3)
	v.SetDefault("scraper.min_session_interval", "0s")
	v.SetDefault("scraper.sessions", "")
}

// LoadConfig reads .env (if present), an optional config.yaml from the
// working directory or ./config, and environment variables such as
// DATABASE_HOST or SCRAPER_TIMEOUT.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Database:        v.GetString("database.name"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(v.GetString("logging.level")),
		},
		Scraper: ScraperConfig{
			BaseURL:              strings.TrimRight(v.GetString("scraper.base_url"), "/"),
			UserAgent:            v.GetString("scraper.user_agent"),
			Timeout:              v.GetDuration("scraper.timeout"),
			RateLimit:            v.GetFloat64("scraper.rate_limit"),
			RateBurst:            v.GetInt("scraper.rate_burst"),
			Debug:                v.GetBool("scraper.debug"),
			UseCache:             v.GetBool("scraper.use_cache"),
			CacheDir:             v.GetString("scraper.cache_dir"),
			ErrorsDir:            v.GetString("scraper.errors_dir"),
			MaxConcurrentFetches: v.GetInt("scraper.max_concurrent_fetches"),
			MinSessionInterval:   v.GetDuration("scraper.min_session_interval"),
			Sessions:             splitList(v.GetString("scraper.sessions")),
		},
	}

	// The page cache is a development aid and only honoured in debug mode.
	if !cfg.Scraper.Debug {
		cfg.Scraper.UseCache = false
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database host is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("database max open conns must be positive"))
	}

	if u, err := url.Parse(c.Scraper.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("scraper base url is invalid: %q", c.Scraper.BaseURL))
	}
	if c.Scraper.UserAgent == "" {
		errs = append(errs, errors.New("scraper user agent is required"))
	}
	if c.Scraper.Timeout <= 0 {
		errs = append(errs, errors.New("scraper timeout must be positive"))
	}
	if c.Scraper.RateLimit < 0 {
		errs = append(errs, errors.New("scraper rate limit must not be negative"))
	}
	if c.Scraper.MaxConcurrentFetches <= 0 {
		errs = append(errs, errors.New("scraper max concurrent fetches must be positive"))
	}
	if c.Scraper.ErrorsDir == "" {
		errs = append(errs, errors.New("scraper errors dir is required"))
	}
	if c.Scraper.UseCache && c.Scraper.CacheDir == "" {
		errs = append(errs, errors.New("scraper cache dir is required when the cache is enabled"))
	}
	if c.Scraper.MinSessionInterval < 0 {
		errs = append(errs, errors.New("scraper min session interval must not be negative"))
	}

	return errors.Join(errs...)
}
