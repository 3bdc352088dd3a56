// Package logger builds the service's zap logger and carries it through
// context. Domain field helpers keep log keys consistent across packages.
package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is json or console.
	Format string

	// Service is attached to every entry.
	Service string

	// Version is attached to every entry when set.
	Version string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: "json",
	}
}

// ParseLevel converts a string to a zap level. Unknown values map to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// New creates a zap logger with the given options.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch opts.Format {
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("logger: unknown format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}

	if opts.Service != "" {
		l = l.With(zap.String("service", opts.Service))
	}
	if opts.Version != "" {
		l = l.With(zap.String("version", opts.Version))
	}
	return l, nil
}

// Context key for logger.
type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Domain logging helpers.
func ProjectID(id string) zap.Field     { return zap.String("project_id", id) }
func StudentID(id string) zap.Field     { return zap.String("student_id", id) }
func BadgeID(id string) zap.Field       { return zap.String("badge_id", id) }
func TemplateID(id string) zap.Field    { return zap.String("template_id", id) }
func StepID(id string) zap.Field        { return zap.String("step_id", id) }
func ActorID(id string) zap.Field       { return zap.String("actor_id", id) }
func Status(s string) zap.Field         { return zap.String("status", s) }
func Component(name string) zap.Field   { return zap.String("component", name) }
func Operation(name string) zap.Field   { return zap.String("operation", name) }
func Latency(d time.Duration) zap.Field { return zap.Duration("latency", d) }
