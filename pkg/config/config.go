// Package config loads stat-pull settings from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvAPIKey   = "STAT_API_KEY"
	EnvBaseURL  = "STAT_BASE_URL"
	EnvRedisURL = "REDIS_URL"
	EnvLogLevel = "LOG_LEVEL"
)

// Config is the full stat-pull configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Client  ClientConfig  `yaml:"client"`
	Redis   RedisConfig   `yaml:"redis"`
	Pull    PullConfig    `yaml:"pull"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig identifies the STAT account.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Results   int    `yaml:"results"`
	Engine    string `yaml:"engine"`
	UserAgent string `yaml:"user_agent"`
}

// ClientConfig tunes the HTTP client.
type ClientConfig struct {
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	DailyQuota        int      `yaml:"daily_quota"`
	CacheTTL          Duration `yaml:"cache_ttl"`
	MaxRetries        int      `yaml:"max_retries"`
	InitialBackoff    Duration `yaml:"initial_backoff"`
}

// RedisConfig enables caching and the shared quota. Empty URL disables both.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PullConfig shapes a pull run.
type PullConfig struct {
	MaxPages    int `yaml:"max_pages"`
	Concurrency int `yaml:"concurrency"`

	// LookbackDays sets the default window: today-LookbackDays to yesterday.
	LookbackDays int `yaml:"lookback_days"`

	// Tags restricts tag tables to these names. Empty keeps all.
	Tags []string `yaml:"tags"`
}

// OutputConfig selects the sinks.
type OutputConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	CSVDir     string `yaml:"csv_dir"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "http://app.getstat.com/api/v2",
			Results:   1000,
			Engine:    "google",
			UserAgent: "stat-pull/1.0",
		},
		Client: ClientConfig{
			Timeout:           DurationOf(60 * time.Second),
			RequestsPerSecond: 5,
			Burst:             1,
			CacheTTL:          DurationOf(time.Hour),
			MaxRetries:        2,
		},
		Pull: PullConfig{
			MaxPages:     1000,
			Concurrency:  4,
			LookbackDays: 31,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes YAML over the defaults without consulting the
// environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads .env style files into the process environment.
// Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.API.APIKey = v
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Redis.URL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) normalise() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	c.API.Engine = strings.ToLower(strings.TrimSpace(c.API.Engine))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	tags := c.Pull.Tags[:0]
	for _, t := range c.Pull.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	c.Pull.Tags = tags
}

// Validate checks ranges. The API key is checked by Require, since some
// commands run without one.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must be set")
	}
	if c.API.Results < 1 || c.API.Results > 5000 {
		return fmt.Errorf("api.results must be 1..5000 (got %d)", c.API.Results)
	}
	if strings.TrimSpace(c.API.UserAgent) == "" {
		return errors.New("api.user_agent must be set")
	}
	if c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("client.requests_per_second must be >= 0 (got %v)", c.Client.RequestsPerSecond)
	}
	if c.Client.DailyQuota < 0 {
		return fmt.Errorf("client.daily_quota must be >= 0 (got %d)", c.Client.DailyQuota)
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must be >= 0 (got %d)", c.Client.MaxRetries)
	}
	if c.Pull.MaxPages <= 0 {
		return fmt.Errorf("pull.max_pages must be > 0 (got %d)", c.Pull.MaxPages)
	}
	if c.Pull.Concurrency <= 0 {
		return fmt.Errorf("pull.concurrency must be > 0 (got %d)", c.Pull.Concurrency)
	}
	if c.Pull.LookbackDays <= 0 {
		return fmt.Errorf("pull.lookback_days must be > 0 (got %d)", c.Pull.LookbackDays)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// Require reports a missing API key.
func (c Config) Require() error {
	if c.API.APIKey == "" {
		return fmt.Errorf("api key missing: set api.api_key or %s", EnvAPIKey)
	}
	return nil
}
