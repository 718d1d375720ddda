// Package logging builds the zap loggers used across the tuner.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger for interactive use when verbose is set and a
// JSON production logger otherwise. Both write to stderr so stdout stays free
// for detections.
func New(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)

	if err != nil {
		return nil, err
	}

	var cfg zap.Config

	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()

	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}

// ParseLevel accepts the zap level names, case-insensitive, plus "warning".
func ParseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))

	if level == "warning" {
		level = "warn"
	}

	lvl, err := zapcore.ParseLevel(level)

	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", level, err)
	}

	return lvl, nil
}

// Named returns a child logger, or a no-op logger for a nil parent.
func Named(parent *zap.Logger, name string) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}

	return parent.Named(name)
}
