// Package logging builds the logr.Logger the engine's components share,
// backed by zap, per SPEC_FULL.md §6.3.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logr.Logger at the given level ("debug", "info", "warn",
// "error"). An unrecognized level falls back to info.
func New(level string) (logr.Logger, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLog, err := cfg.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("logging: build zap logger: %w", err)
	}

	return zapr.NewLogger(zapLog), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("logging: unrecognized level %q", level)
	}
}

// AtomicLevel's Set method is used by the config watcher's hot-reload
// path. It holds the zap.AtomicLevel the logger was built with, so Set
// can mutate a live logger's verbosity without rebuilding it.
type AtomicLevel struct {
	inner zap.AtomicLevel
}

// NewAtomic builds a logr.Logger alongside an AtomicLevel handle that lets
// callers change its verbosity after construction.
func NewAtomic(level string) (logr.Logger, *AtomicLevel, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		zapLevel = zap.InfoLevel
	}

	atomic := zap.NewAtomicLevelAt(zapLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = atomic
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLog, err := cfg.Build()
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("logging: build zap logger: %w", err)
	}

	return zapr.NewLogger(zapLog), &AtomicLevel{inner: atomic}, nil
}

// Set changes the live level. Unrecognized levels are ignored.
func (a *AtomicLevel) Set(level string) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return
	}
	a.inner.SetLevel(zapLevel)
}
