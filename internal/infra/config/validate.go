package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateDispatch(cfg, ve)
	validateJournal(cfg, ve)
	validateMaintenance(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is not one of text, json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not one of stdout, noop", cfg.Tracer.Exporter)
	}
}

func validateDispatch(cfg *Config, ve *ValidationError) {
	if cfg.Dispatch.AgentRetries < 0 {
		ve.Add("dispatch.agent_retries must be >= 0")
	}
	if cfg.Dispatch.RetryBackoff < 0 {
		ve.Add("dispatch.retry_backoff must be >= 0")
	}
	if cfg.Dispatch.RatePerSecond < 0 {
		ve.Add("dispatch.rate_per_second must be >= 0")
	}
	if cfg.Dispatch.RatePerSecond > 0 && cfg.Dispatch.Burst <= 0 {
		ve.Add("dispatch.burst must be > 0 when throttling is enabled")
	}
}

func validateJournal(cfg *Config, ve *ValidationError) {
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		ve.Add("journal.path must not be empty when the journal is enabled")
	}
}

func validateMaintenance(cfg *Config, ve *ValidationError) {
	if !cfg.Maintenance.Enabled {
		return
	}
	if cfg.Maintenance.StatsDecaySchedule == "" {
		ve.Add("maintenance.stats_decay_schedule must not be empty when maintenance is enabled")
	}
	if cfg.Maintenance.JournalPruneSchedule == "" {
		ve.Add("maintenance.journal_prune_schedule must not be empty when maintenance is enabled")
	}
	if cfg.Maintenance.JournalRetention <= 0 {
		ve.Add("maintenance.journal_retention must be > 0 when maintenance is enabled")
	}
}
