// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates a logger for the named service. Level and format come from
// the LOG_LEVEL and LOG_FORMAT environment variables; json is the default
// format, "console" and "pretty" switch to a human-readable writer.
func New(service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(envOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	switch strings.ToLower(envOrDefault("LOG_FORMAT", "json")) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
