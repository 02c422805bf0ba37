package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/flagconsole/internal/config"
	"github.com/pitabwire/flagconsole/model"
)

type loggerKey struct{}

// NewLogger creates the console's JSON logger. Every entry carries the build
// version; an unknown level falls back to info.
//
// Levels:
//   - error: 5xx responses, panics, store and gateway outages
//   - warn:  4xx responses, failed list fetches, open circuit breaker
//   - info:  requests, session lifecycle, submitted forms, confirmed actions
//   - debug: cache activity, stale list responses, gateway retries
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.MessageKey = "msg"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeDuration = zapcore.MillisDurationEncoder

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig = encoder
	zapCfg.Sampling = nil
	zapCfg.InitialFields = map[string]any{"version": Version}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context's logger annotated with who is calling
// and which session and environment the call concerns.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 6)
	fields = append(fields,
		zap.String("organization_id", rctx.OrganizationID),
		zap.String("environment_id", rctx.EnvironmentID),
		zap.String("subject_id", rctx.SubjectID),
		zap.String("correlation_id", rctx.CorrelationID),
	)
	for _, f := range []struct{ key, value string }{
		{"session_id", rctx.SessionID},
		{"trace_id", rctx.TraceID},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	return logger.With(fields...)
}

const redacted = "[REDACTED]"

// sensitiveFields are always redacted, compared case-insensitively. They
// cover credentials and the secrets carried by push and API key commands.
var sensitiveFields = []string{
	"password", "secret", "token", "access_token", "refresh_token",
	"authorization", "api_key", "apikey", "fcmapikey",
}

// RedactBody returns a copy of a gateway request body with sensitive members
// replaced, at any depth and inside lists. extra names more members to hide.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	hide := make(map[string]struct{}, len(sensitiveFields)+len(extra))
	for _, f := range sensitiveFields {
		hide[f] = struct{}{}
	}
	for _, f := range extra {
		hide[strings.ToLower(f)] = struct{}{}
	}
	return redactMap(body, hide)
}

func redactMap(m map[string]any, hide map[string]struct{}) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := hide[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v, hide)
	}
	return out
}

func redactValue(v any, hide map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, hide)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, hide)
		}
		return out
	default:
		return v
	}
}
