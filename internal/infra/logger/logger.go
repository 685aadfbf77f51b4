// Package logger builds the engine's root *slog.Logger from configuration.
// Every record carries a "service" attribute so lines from the dispatch
// engine are distinguishable when logs from several processes are merged.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"switchboard/internal/infra/config"
)

const serviceName = "switchboard"

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New creates the configured root logger. The returned closer flushes and
// closes file-backed outputs and should be deferred by the caller.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	log := slog.New(handler).With(slog.String("service", serviceName))
	return log, closer, nil
}

// parseLevel maps a configured level name to slog.Level. Unknown names fall
// back to info rather than fail; validation catches typos before this runs.
func parseLevel(s string) slog.Level {
	if level, ok := levelNames[strings.ToLower(s)]; ok {
		return level
	}
	return slog.LevelInfo
}

// openOutput resolves the configured output target to a writer and a closer.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
