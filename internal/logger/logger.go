// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logger configures structured logging for the pipeline.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger settings.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Pretty enables console-formatted output for interactive use.
	Pretty bool

	// Output defaults to stderr so pipeline results on stdout stay
	// machine-readable.
	Output io.Writer
}

// New builds the root logger. Stage packages derive their own via
// With().Str("component", ...).
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "deep-research").
		Logger()
}
