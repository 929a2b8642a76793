package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TOOLSCORE_DB_PATH", "CRON_SECRET", "GITHUB_TOKEN", "OPEN_PAGERANK_API_KEY",
		"SLACK_WEBHOOK_URL", "DISCORD_WEBHOOK_URL", "TOOLSCORE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./toolscore.db", cfg.Database.Path)
	assert.Empty(t, cfg.Server.CronSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Trend.ParseWindow())
	assert.Equal(t, []string{"app_store", "play_store", "tranco", "trustpilot", "github", "news_mentions"}, cfg.Collectors.Enabled())
}

func TestLoad_FileMergesOverDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /data/tools.db
collectors:
  g2:
    enabled: true
    delay: 5s
  tranco:
    enabled: false
recommend:
  limit: 3
trend:
  window: 72h
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/tools.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Recommend.Limit)
	assert.Equal(t, 10.0, cfg.Recommend.PriceCeiling)
	assert.Equal(t, 72*time.Hour, cfg.Trend.ParseWindow())

	g2, ok := cfg.Collectors.Get("g2")
	require.True(t, ok)
	assert.True(t, g2.Enabled)
	assert.Equal(t, "30 3 * * 1", g2.Schedule)
	assert.Equal(t, 5*time.Second, g2.Options().Delay)
	assert.NotContains(t, cfg.Collectors.Enabled(), "tranco")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOOLSCORE_DB_PATH", "/tmp/env.db")
	t.Setenv("CRON_SECRET", "shh")
	t.Setenv("GITHUB_TOKEN", "ghp_x")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/a")
	t.Setenv("TOOLSCORE_LOG_LEVEL", "debug")
	t.Setenv("OPEN_PAGERANK_API_KEY", "opr-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "shh", cfg.Server.CronSecret)
	assert.Equal(t, "ghp_x", cfg.Collectors.GitHub.Options().Token)
	assert.Equal(t, "opr-key", cfg.Collectors.OpenPageRank.Options().Token)
	assert.Contains(t, cfg.Collectors.Enabled(), "open_pagerank")
	assert.True(t, cfg.Alerts.Slack.Enabled)
	assert.False(t, cfg.Alerts.Discord.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [oops"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestCollectorConfig_BadDelay(t *testing.T) {
	assert.Zero(t, CollectorConfig{Delay: "soon"}.ParseDelay())
	_, ok := (&CollectorsConfig{}).Get("reddit")
	assert.False(t, ok)
}
