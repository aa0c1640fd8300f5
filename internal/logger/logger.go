// Package logger wraps zap so every component logs through the same
// structured, tenant-aware interface (grounded on the teacher's
// internal/logger).
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// Config is the subset of application configuration the logger needs; it
// is deliberately narrow so this package never imports internal/config
// (which in turn depends on types, avoiding a cycle).
type Config struct {
	Debug bool
}

// New builds a Logger. In debug mode it uses zap's human-readable
// development encoder; otherwise JSON production logging.
func New(cfg Config) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Debug {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type ctxKey struct{}

// WithTenant returns a context carrying fields that WithContext will pick
// up automatically on the next log call.
func WithTenant(ctx context.Context, tenantID, environmentID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, [2]string{tenantID, environmentID})
}

// WithContext enriches the logger with the tenant/environment recorded on
// ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	ids, ok := ctx.Value(ctxKey{}).([2]string)
	if !ok {
		return l
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With("tenant_id", ids[0], "environment_id", ids[1])}
}

// retryableHTTPLogger adapts Logger to go-retryablehttp's Logger interface.
type retryableHTTPLogger struct {
	logger *Logger
}

// GetRetryableHTTPLogger returns a retryable HTTP client-compatible logger,
// used by internal/usage's metering client.
func (l *Logger) GetRetryableHTTPLogger() *retryableHTTPLogger {
	return &retryableHTTPLogger{logger: l}
}

func (r *retryableHTTPLogger) Printf(format string, v ...interface{}) {
	r.logger.Infof(format, v...)
}
