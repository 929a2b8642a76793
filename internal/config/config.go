package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/collector"
)

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Collectors  CollectorsConfig  `yaml:"collectors"`
	Recommend   RecommendConfig   `yaml:"recommend"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Trend       TrendConfig       `yaml:"trend"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CronSecret string `yaml:"cron_secret"`
}

// ScheduleConfig holds cron expressions for the jobs run by the daemon.
// Collector schedules live on each collector.
type ScheduleConfig struct {
	Reconcile string `yaml:"reconcile"`
	Merge     string `yaml:"merge"`
}

// CollectorConfig configures one external source.
type CollectorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	BaseURL  string `yaml:"base_url"`
	Delay    string `yaml:"delay"`
	Token    string `yaml:"token"`
}

// ParseDelay returns the per-tool delay, or zero to use the source default.
func (c CollectorConfig) ParseDelay() time.Duration {
	d, err := time.ParseDuration(c.Delay)
	if err != nil {
		return 0
	}
	return d
}

// Options converts the entry to fetcher options.
func (c CollectorConfig) Options() collector.Options {
	return collector.Options{BaseURL: c.BaseURL, Delay: c.ParseDelay(), Token: c.Token}
}

// CollectorsConfig holds configuration for all external sources.
type CollectorsConfig struct {
	AppStore     CollectorConfig `yaml:"app_store"`
	PlayStore    CollectorConfig `yaml:"play_store"`
	Tranco       CollectorConfig `yaml:"tranco"`
	OpenPageRank CollectorConfig `yaml:"open_pagerank"`
	Trustpilot   CollectorConfig `yaml:"trustpilot"`
	G2           CollectorConfig `yaml:"g2"`
	GitHub       CollectorConfig `yaml:"github"`
	NewsMentions CollectorConfig `yaml:"news_mentions"`
}

// Get returns the entry for a source key.
func (c *CollectorsConfig) Get(source string) (CollectorConfig, bool) {
	switch source {
	case catalog.SourceAppStore:
		return c.AppStore, true
	case catalog.SourcePlayStore:
		return c.PlayStore, true
	case catalog.SourceTranco:
		return c.Tranco, true
	case catalog.SourceOpenPageRank:
		return c.OpenPageRank, true
	case catalog.SourceTrustpilot:
		return c.Trustpilot, true
	case catalog.SourceG2:
		return c.G2, true
	case catalog.SourceGitHub:
		return c.GitHub, true
	case catalog.SourceNewsMentions:
		return c.NewsMentions, true
	}
	return CollectorConfig{}, false
}

// Enabled lists the enabled source keys in catalog order.
func (c *CollectorsConfig) Enabled() []string {
	var out []string
	for _, src := range catalog.AllSources() {
		if cc, ok := c.Get(src); ok && cc.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// RecommendConfig configures the recommendation engine.
type RecommendConfig struct {
	PriceCeiling float64 `yaml:"price_ceiling"`
	Limit        int     `yaml:"limit"`
}

// SuggestionsConfig configures community suggestion handling.
type SuggestionsConfig struct {
	VoteThreshold int `yaml:"vote_threshold"`
	BatchSize     int `yaml:"batch_size"`
}

// TrendConfig configures trend detection.
type TrendConfig struct {
	Threshold float64 `yaml:"threshold"`
	Window    string  `yaml:"window"`
}

// ParseWindow returns the snapshot lookback as time.Duration.
func (t TrendConfig) ParseWindow() time.Duration {
	d, err := time.ParseDuration(t.Window)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	MinTrendMagnitude int           `yaml:"min_trend_magnitude"`
	Slack             SlackConfig   `yaml:"slack"`
	Discord           DiscordConfig `yaml:"discord"`
	Webhook           WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./toolscore.db"},
		Server:   ServerConfig{Port: 8080},
		Schedule: ScheduleConfig{
			Reconcile: "0 5 * * *",
			Merge:     "0 */6 * * *",
		},
		Collectors: CollectorsConfig{
			AppStore:     CollectorConfig{Enabled: true, Schedule: "0 3 * * *"},
			PlayStore:    CollectorConfig{Enabled: true, Schedule: "5 3 * * *"},
			Tranco:       CollectorConfig{Enabled: true, Schedule: "10 3 * * *"},
			OpenPageRank: CollectorConfig{Enabled: false, Schedule: "15 3 * * *"},
			Trustpilot:   CollectorConfig{Enabled: true, Schedule: "20 3 * * *"},
			G2:           CollectorConfig{Enabled: false, Schedule: "30 3 * * 1"},
			GitHub:       CollectorConfig{Enabled: true, Schedule: "40 3 * * *"},
			NewsMentions: CollectorConfig{Enabled: true, Schedule: "50 3 * * *"},
		},
		Recommend: RecommendConfig{
			PriceCeiling: 10,
			Limit:        8,
		},
		Suggestions: SuggestionsConfig{
			VoteThreshold: 10,
			BatchSize:     10,
		},
		Trend: TrendConfig{
			Threshold: 1,
			Window:    "168h",
		},
		Alerts: AlertsConfig{MinTrendMagnitude: 5},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOOLSCORE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Server.CronSecret = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Collectors.GitHub.Token = v
	}
	if v := os.Getenv("OPEN_PAGERANK_API_KEY"); v != "" {
		cfg.Collectors.OpenPageRank.Token = v
		cfg.Collectors.OpenPageRank.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("TOOLSCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
