package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sina", cfg.Source.Kind)
	assert.Equal(t, 10, cfg.Pipeline.DailyWorkers)
	assert.Equal(t, 8, cfg.Pipeline.FeeWorkers)
	assert.Equal(t, 50, cfg.Pipeline.ProgressEvery)
	assert.Equal(t, 3, cfg.Storage.MaxAttempts)
	assert.Equal(t, "0 0 16 * * 1-5", cfg.Schedule.DailyCron)
	assert.Equal(t, "Asia/Shanghai", cfg.Schedule.Timezone)
	assert.Equal(t, "main", cfg.GitHub.Branch)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
universe:
  codes: ["159915", "510300"]
source:
  kind: yahoo
  timeout: 3s
pipeline:
  daily_workers: 4
  fee_workers: 2
github:
  owner: someone
  repo: data
  token: from-file
`)
	t.Setenv("GT", "from-env")
	t.Setenv("CRON_DAILY", "0 30 15 * * 1-5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"159915", "510300"}, cfg.Universe.Codes)
	assert.Equal(t, "yahoo", cfg.Source.Kind)
	assert.Equal(t, 3*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 4, cfg.Pipeline.DailyWorkers)
	assert.Equal(t, "from-env", cfg.GitHub.Token)
	assert.Equal(t, "0 30 15 * * 1-5", cfg.Schedule.DailyCron)
	assert.True(t, cfg.RemoteEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "universe: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		cfg.Universe.Codes = []string{"159915"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"empty universe", func(c *Config) { c.Universe.Codes = nil }, false},
		{"unknown source", func(c *Config) { c.Source.Kind = "tushare" }, false},
		{"fee pool wider than daily", func(c *Config) { c.Pipeline.FeeWorkers = 12 }, false},
		{"fee pool equal to daily", func(c *Config) { c.Pipeline.FeeWorkers = 10 }, true},
		{"owner without repo", func(c *Config) { c.GitHub.Owner = "x" }, false},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
