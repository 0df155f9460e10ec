package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
)

// basic global logger, JSON to stdout.
var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Setup replaces the global logger. format is "json" or "console".
func Setup(level, format string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func Logger() *zerolog.Logger {
	return &logger
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *zerolog.Logger {
	l := logger.With().Fields(kv).Logger()
	return &l
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request_id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID
}

// LoggerFromContext adds request_id if present.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	reqID := RequestID(ctx)
	if reqID == "" {
		return &logger
	}
	l := logger.With().Str("request_id", reqID).Logger()
	return &l
}
