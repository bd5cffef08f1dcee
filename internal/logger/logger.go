// Package logger builds the zap.Logger used throughout the orchestrator,
// grounded on the teacher's internal/logger/logger.go.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const loggerKey contextKey = "logger"

// New builds a zap.Logger for format ("development" or "production") and
// level ("debug", "info", "warn", "error").
func New(format, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch format {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	built, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return built, nil
}

// WithComponent returns a child logger scoped to one component name. Every
// worker, storage backend, and queue broker binding tags itself this way.
func WithComponent(l *zap.Logger, component string) *zap.Logger {
	return l.With(zap.String("component", component))
}

// WithContext carries l on ctx, alongside (not instead of) the tenant scope.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the carried logger, or a no-op logger if none is set.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithJobID tags the context logger with the job being processed.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With(zap.String("job_id", jobID)))
}
