// Package config loads, validates, and watches the engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
	// AddSource annotates every record with the emitting file and line.
	AddSource bool `yaml:"add_source"`
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// DispatchConfig holds orchestrator settings.
type DispatchConfig struct {
	AgentRetries   int           `yaml:"agent_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	RatePerSecond  float64       `yaml:"rate_per_second"` // 0 disables throttling
	Burst          int           `yaml:"burst"`
	DefaultTimeout time.Duration `yaml:"default_timeout"` // per-request ceiling, 0 = none
}

// ClassifierConfig holds intent classifier settings.
type ClassifierConfig struct {
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
	BreakerInterval    time.Duration `yaml:"breaker_interval"`
}

// RulesConfig holds routing rule file settings.
type RulesConfig struct {
	// Path is the YAML file holding routing rules. Empty disables file rules.
	Path string `yaml:"path"`
	// Watch enables hot reload when the rule file changes on disk.
	Watch bool `yaml:"watch"`
}

// GuardConfig bounds what the workflow guard step accepts.
type GuardConfig struct {
	MaxContentBytes int `yaml:"max_content_bytes"`
}

// JournalConfig holds dispatch journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite file path
}

// MaintenanceConfig holds background maintenance settings.
type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled"`
	// StatsDecaySchedule is a cron expression for halving rule statistics.
	StatsDecaySchedule string `yaml:"stats_decay_schedule"`
	// JournalPruneSchedule is a cron expression for pruning old journal rows.
	JournalPruneSchedule string `yaml:"journal_prune_schedule"`
	// JournalRetention is how long journal rows are kept.
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// Config is the top-level engine configuration.
type Config struct {
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Rules       RulesConfig       `yaml:"rules"`
	Guard       GuardConfig       `yaml:"guard"`
	Journal     JournalConfig     `yaml:"journal"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Defaults returns the configuration used when no file or overrides exist.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Dispatch: DispatchConfig{
			AgentRetries:   2,
			RetryBackoff:   200 * time.Millisecond,
			RatePerSecond:  0,
			Burst:          1,
			DefaultTimeout: 30 * time.Second,
		},
		Classifier: ClassifierConfig{
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			BreakerInterval:    time.Minute,
		},
		Rules: RulesConfig{
			Path:  "",
			Watch: false,
		},
		Guard: GuardConfig{
			MaxContentBytes: 1 << 20,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "journal.db"),
		},
		Maintenance: MaintenanceConfig{
			Enabled:              true,
			StatsDecaySchedule:   "0 3 * * *", // daily at 03:00
			JournalPruneSchedule: "30 3 * * *",
			JournalRetention:     30 * 24 * time.Hour,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".switchboard")
	}
	return "./data"
}

// Load reads the configuration file at path, applies environment overrides,
// and validates the result. A missing file is not an error; defaults plus
// overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies SWITCHBOARD_* environment variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHBOARD_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SWITCHBOARD_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SWITCHBOARD_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("SWITCHBOARD_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SWITCHBOARD_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SWITCHBOARD_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("SWITCHBOARD_RULES_WATCH"); v == "true" {
		cfg.Rules.Watch = true
	}
	if v := os.Getenv("SWITCHBOARD_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SWITCHBOARD_JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v == "true"
	}
	if v := os.Getenv("SWITCHBOARD_DISPATCH_AGENT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.AgentRetries = n
		}
	}
	if v := os.Getenv("SWITCHBOARD_DISPATCH_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dispatch.RatePerSecond = f
		}
	}
}
