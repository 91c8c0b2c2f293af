package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // schedule.timezone must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Universe struct {
		Codes []string `yaml:"codes"`
		File  string   `yaml:"file"`
	} `yaml:"universe"`
	Source struct {
		Kind    string        `yaml:"kind"`
		Timeout time.Duration `yaml:"timeout"`
		Proxy   string        `yaml:"proxy"`
	} `yaml:"source"`
	Pipeline struct {
		DailyWorkers  int           `yaml:"daily_workers"`
		FeeWorkers    int           `yaml:"fee_workers"`
		ProgressEvery int           `yaml:"progress_every"`
		CallTimeout   time.Duration `yaml:"call_timeout"`
	} `yaml:"pipeline"`
	Fees struct {
		CacheFile string        `yaml:"cache_file"`
		RedisAddr string        `yaml:"redis_addr"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"fees"`
	GitHub struct {
		Owner  string `yaml:"owner"`
		Repo   string `yaml:"repo"`
		Path   string `yaml:"path"`
		Branch string `yaml:"branch"`
		Token  string `yaml:"token"`
	} `yaml:"github"`
	Storage struct {
		LocalCSV    string `yaml:"local_csv"`
		MaxAttempts int    `yaml:"max_attempts"`
		ParquetDir  string `yaml:"parquet_dir"`
	} `yaml:"storage"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
		Timezone  string `yaml:"timezone"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	// GT takes precedence; it is the name the hosted workflow exports.
	if v := os.Getenv("GT"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Source.Proxy = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Fees.RedisAddr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		c.Schedule.DailyCron = v
	}
	if v := os.Getenv("ETFQ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ETFQ_DAILY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.DailyWorkers = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Source.Kind == "" {
		c.Source.Kind = "sina"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 15 * time.Second
	}
	if c.Pipeline.DailyWorkers == 0 {
		c.Pipeline.DailyWorkers = 10
	}
	if c.Pipeline.FeeWorkers == 0 {
		c.Pipeline.FeeWorkers = 8
	}
	if c.Pipeline.ProgressEvery == 0 {
		c.Pipeline.ProgressEvery = 50
	}
	if c.Pipeline.CallTimeout == 0 {
		c.Pipeline.CallTimeout = 20 * time.Second
	}
	if c.Fees.CacheFile == "" {
		c.Fees.CacheFile = "data/fee_cache.json"
	}
	if c.Fees.Timeout == 0 {
		c.Fees.Timeout = 10 * time.Second
	}
	if c.GitHub.Path == "" {
		c.GitHub.Path = "etf_data.csv"
	}
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.Storage.LocalCSV == "" {
		c.Storage.LocalCSV = "data/etf_data.csv"
	}
	if c.Storage.MaxAttempts == 0 {
		c.Storage.MaxAttempts = 3
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/etfquant.db"
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 0 16 * * 1-5"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Shanghai"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// RemoteEnabled reports whether a GitHub dataset is configured.
func (c *Config) RemoteEnabled() bool {
	return c.GitHub.Owner != "" && c.GitHub.Repo != "" && c.GitHub.Token != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Universe.Codes) == 0 && c.Universe.File == "" {
		return fmt.Errorf("universe.codes or universe.file is required")
	}
	switch c.Source.Kind {
	case "sina", "yahoo":
	default:
		return fmt.Errorf("source.kind must be sina or yahoo, got %q", c.Source.Kind)
	}
	if c.Pipeline.DailyWorkers <= 0 {
		return fmt.Errorf("pipeline.daily_workers must be positive")
	}
	if c.Pipeline.FeeWorkers <= 0 || c.Pipeline.FeeWorkers > c.Pipeline.DailyWorkers {
		return fmt.Errorf("pipeline.fee_workers must be between 1 and pipeline.daily_workers")
	}
	if c.Pipeline.ProgressEvery <= 0 {
		return fmt.Errorf("pipeline.progress_every must be positive")
	}
	if c.Storage.MaxAttempts <= 0 {
		return fmt.Errorf("storage.max_attempts must be positive")
	}
	if (c.GitHub.Owner == "") != (c.GitHub.Repo == "") {
		return fmt.Errorf("github.owner and github.repo must be set together")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}
