// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/crawler"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Source    SourceConfig    `mapstructure:"source"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// DatabaseConfig selects and configures the catalog store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SourceConfig describes the remote listing and detail endpoints.
type SourceConfig struct {
	ListURL        string   `mapstructure:"list_url"`
	DetailURL      string   `mapstructure:"detail_url"`
	UserAgents     []string `mapstructure:"user_agents"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	BackoffBaseMs  int      `mapstructure:"backoff_base_ms"`
	CountryCode    string   `mapstructure:"country_code"`
}

// CrawlerConfig governs the crawl loop.
type CrawlerConfig struct {
	DelayMs              int      `mapstructure:"delay_ms"`
	FailureThreshold     int      `mapstructure:"failure_threshold"`
	RateLimitWeight      int      `mapstructure:"rate_limit_weight"`
	CooldownMinutes      int      `mapstructure:"cooldown_minutes"`
	StatsEvery           int      `mapstructure:"stats_every"`
	Shuffle              bool     `mapstructure:"shuffle"`
	RetryFailed          bool     `mapstructure:"retry_failed"`
	NameFilter           bool     `mapstructure:"name_filter"`
	TransientPolicy      string   `mapstructure:"transient_policy"`
	TargetType           string   `mapstructure:"target_type"`
	ListFreshnessHours   int      `mapstructure:"list_freshness_hours"`
	IdlePollMinutes      int      `mapstructure:"idle_poll_minutes"`
	ExtraExcludeKeywords []string `mapstructure:"extra_exclude_keywords"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PubSubConfig holds metadata for new-game notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the minimum level; empty keeps the mode's default.
	Level string `mapstructure:"level"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// DefaultUserAgents is the client identity pool.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// Load builds a Config from an optional .env file, an optional config file and
// CATALOG_ prefixed environment variables.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv loads the given files (default ".env") into the process
// environment without overriding variables that are already set. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "catalog.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("source.list_url", "https://api.steampowered.com/ISteamApps/GetAppList/v2/")
	v.SetDefault("source.detail_url", "https://store.steampowered.com/api/appdetails")
	v.SetDefault("source.user_agents", DefaultUserAgents)
	v.SetDefault("source.timeout_seconds", 10)
	v.SetDefault("source.max_attempts", 3)
	v.SetDefault("source.backoff_base_ms", 1000)
	v.SetDefault("source.country_code", "")
	v.SetDefault("crawler.delay_ms", 3000)
	v.SetDefault("crawler.failure_threshold", 50)
	v.SetDefault("crawler.rate_limit_weight", 1)
	v.SetDefault("crawler.cooldown_minutes", 120)
	v.SetDefault("crawler.stats_every", 100)
	v.SetDefault("crawler.shuffle", false)
	v.SetDefault("crawler.retry_failed", false)
	v.SetDefault("crawler.name_filter", true)
	v.SetDefault("crawler.transient_policy", string(crawler.TransientPending))
	v.SetDefault("crawler.target_type", "game")
	v.SetDefault("crawler.list_freshness_hours", 7*24)
	v.SetDefault("crawler.idle_poll_minutes", 60)
	v.SetDefault("crawler.extra_exclude_keywords", []string{})
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "steam-catalog-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Source.ListURL == "" || c.Source.DetailURL == "" {
		return fmt.Errorf("source.list_url and source.detail_url must be set")
	}
	if len(c.Source.UserAgents) == 0 {
		return fmt.Errorf("source.user_agents must not be empty")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.MaxAttempts <= 0 {
		return fmt.Errorf("source.max_attempts must be > 0")
	}
	if c.Source.BackoffBaseMs < 0 {
		return fmt.Errorf("source.backoff_base_ms must be >= 0")
	}
	if c.Crawler.DelayMs < 0 {
		return fmt.Errorf("crawler.delay_ms must be >= 0")
	}
	if c.Crawler.IdlePollMinutes <= 0 {
		return fmt.Errorf("crawler.idle_poll_minutes must be > 0")
	}
	if err := c.CrawlerSettings().Validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// CrawlerSettings converts the crawler section into engine configuration.
func (c Config) CrawlerSettings() crawler.Config {
	policy, err := crawler.ParseTransientPolicy(c.Crawler.TransientPolicy)
	if err != nil {
		// Left unparsed so Validate reports it.
		policy = crawler.TransientPolicy(c.Crawler.TransientPolicy)
	}
	return crawler.Config{
		Delay:            time.Duration(c.Crawler.DelayMs) * time.Millisecond,
		FailureThreshold: c.Crawler.FailureThreshold,
		RateLimitWeight:  c.Crawler.RateLimitWeight,
		Cooldown:         time.Duration(c.Crawler.CooldownMinutes) * time.Minute,
		StatsEvery:       c.Crawler.StatsEvery,
		Selection: catalog.Selection{
			RetryFailed: c.Crawler.RetryFailed,
			Shuffle:     c.Crawler.Shuffle,
		},
		NameFilter:      c.Crawler.NameFilter,
		TransientPolicy: policy,
		TargetType:      c.Crawler.TargetType,
		ListFreshness:   time.Duration(c.Crawler.ListFreshnessHours) * time.Hour,
		IdlePoll:        time.Duration(c.Crawler.IdlePollMinutes) * time.Minute,
		Topic:           c.PubSub.TopicName,
	}
}

// SourceTimeout is the per-request timeout for the remote source.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// SourceBackoff is the base delay of the detail fetcher's local retry.
func (c Config) SourceBackoff() time.Duration {
	return time.Duration(c.Source.BackoffBaseMs) * time.Millisecond
}
