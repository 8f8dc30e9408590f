package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/model"
)

type loggerKey struct{}

// NewLogger builds the service logger. log_format selects json (default) or
// console output; an unknown log_level falls back to info. Every entry
// carries the service name and build version.
//
// Levels:
//   - error: store failures, unparseable catalog documents, unhandled panics
//   - warn:  skipped catalog entries, unknown enchantments or flags, 4xx responses
//   - info:  catalog loads and reloads, command dispatch, inventory saves, host connections
//   - debug: per-interaction decisions, resolver cache behaviour
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := "json"
	if cfg.LogFormat == "console" {
		encoding = "console"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "coreitems"), zap.String("version", Version)), nil
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// RequestLogger tags the context logger with the caller's subject and
// correlation id and with the trace id. The trace id comes from the request
// context, or from the active span when the request carried none.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	var fields []zap.Field
	traceID := TraceIDFromContext(ctx)
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		fields = append(fields,
			zap.String("subject_id", rctx.SubjectID),
			zap.String("correlation_id", rctx.CorrelationID),
		)
		if rctx.TraceID != "" {
			traceID = rctx.TraceID
		}
	}
	if traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// UserLogger is the context logger tagged with the acting user.
func UserLogger(ctx context.Context, fallback *zap.Logger, userID string) *zap.Logger {
	return LoggerFrom(ctx, fallback).With(zap.String("user_id", userID))
}

// ItemField names a definition by its qualified id.
func ItemField(def *model.ItemDefinition) zap.Field {
	if def == nil {
		return zap.Skip()
	}
	return zap.String("item", def.QualifiedID())
}
