package obs

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Format string
}

// NewLogger builds the process logger. Format is "json" (default) or "console".
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "ts"
		zcfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zcfg.Level = level
	zcfg.OutputPaths = []string{"stdout"}
	return zcfg.Build()
}

func LogAccess(logger *zap.Logger, ctx RequestContext) {
	if logger == nil {
		return
	}
	logger.Info("access",
		zap.String("request_id", defaultString(ctx.RequestID, "none")),
		zap.String("method", ctx.Method),
		zap.String("path", ctx.Path),
		zap.String("route", defaultString(ctx.Route, "none")),
		zap.Int("status", ctx.Status),
		zap.Int64("duration_ms", ctx.Duration.Milliseconds()),
		zap.Int64("bytes_out", ctx.BytesOut),
		zap.String("cache_status", defaultString(ctx.CacheStatus, "bypass")),
		zap.String("error_category", defaultString(ctx.ErrorCategory, "none")),
		zap.String("user_agent", ctx.UserAgent),
		zap.String("remote_addr", ctx.RemoteAddr),
	)
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
