package main

import (
	"bytes"
	"fmt"
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/toolscore/internal/config"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"collect", "reconcile", "merge", "recommend", "status", "import", "weights", "serve", "run"} {
		assert.Contains(t, names, want)
	}
}

func TestBuildFetchers(t *testing.T) {
	cfg := config.Default()
	fetchers, err := buildFetchers(cfg)
	require.NoError(t, err)

	var sources []string
	for _, f := range fetchers {
		sources = append(sources, f.Source())
	}
	assert.Equal(t, cfg.Collectors.Enabled(), sources)
}

func TestBuildAlertManager(t *testing.T) {
	cfg := config.Default()
	assert.False(t, buildAlertManager(cfg).HasNotifiers())

	cfg.Alerts.Webhook = config.WebhookConfig{Enabled: true, URL: "https://example.test/hook"}
	assert.True(t, buildAlertManager(cfg).HasNotifiers())

	cfg = config.Default()
	cfg.Alerts.Slack.Enabled = true
	assert.False(t, buildAlertManager(cfg).HasNotifiers(), "slack without URL is skipped")
}

func TestWarnMissingDefaults(t *testing.T) {
	var buf bytes.Buffer
	warnMissingDefaults(&buf, scoring.Table{Global: maps.Clone(scoring.DefaultWeights)})
	assert.Empty(t, buf.String())

	warnMissingDefaults(&buf, scoring.Table{Global: scoring.Weights{scoring.KeyInternalWeight: 1}})
	out := buf.String()
	assert.Contains(t, out, fmt.Sprintf("%d default weights are not set", len(scoring.DefaultWeights)-1))
	assert.Contains(t, out, scoring.KeyExternalWeight)
	assert.NotContains(t, out, scoring.KeyInternalWeight+",")
}
