// Package logger owns the process-wide zerolog logger so every package logs
// with the same level and output format.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	initialised   bool
)

// Setup configures the default logger. Level comes from LOG_LEVEL
// (debug/info/warn/error, default info); LOG_FORMAT=console switches from
// JSON to human-readable output for local development.
func Setup() zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	var out = zerolog.New(os.Stderr)
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	defaultLogger = out.Level(lvl).With().Timestamp().Logger()
	initialised = true
	return defaultLogger
}

// L returns the default logger, initialising it on first use.
func L() zerolog.Logger {
	if !initialised {
		return Setup()
	}
	return defaultLogger
}
