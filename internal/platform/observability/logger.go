// Package observability holds the logging, tracing and metrics plumbing shared by the HTTP stack.
package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/requestctx"
)

// NewLogger builds a JSON logger whose keys match what Cloud Logging parses (severity, message,
// timestamp). LOG_LEVEL selects the level; unknown values fall back to info. Every entry carries
// serviceContext so errors group under service in Error Reporting.
func NewLogger(service string) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level.SetLevel(parsed)
		}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.MessageKey = "message"
	enc.TimeKey = "timestamp"
	enc.LevelKey = "severity"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	cfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     enc,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	var opts []zap.Option
	if service = strings.TrimSpace(service); service != "" {
		opts = append(opts, zap.Fields(zap.Any("serviceContext", map[string]string{"service": service})))
	}
	return cfg.Build(opts...)
}

// WithLogger stores logger on ctx for code running outside an HTTP request.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// PrintfLogger bridges zap to packages that log through a Printf method. Those packages report
// rejected or degraded requests, so lines are written at warn level.
type PrintfLogger func(format string, args ...any)

// Printf implements the printf-style logger interfaces.
func (f PrintfLogger) Printf(format string, args ...any) { f(format, args...) }

// NewPrintfAdapter wraps logger as a PrintfLogger.
func NewPrintfAdapter(logger *zap.Logger) PrintfLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Sugar().Warnf
}
