package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Logger is the structured logger handed to every adapter and service
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithContext(ctx context.Context) Logger
}

// Service is attached to every record
const Service = "lead-assistant"

const redacted = "[REDACTED]"

// secretKeys are attribute keys, alone or as a _suffix, whose values never
// reach the output
var secretKeys = []string{"api_key", "apikey", "token", "secret", "password", "authorization"}

// SlogLogger writes JSON records through log/slog
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

// New builds a JSON logger writing to output at the given level. A nil output
// means stdout.
func New(level slog.Level, output io.Writer) *SlogLogger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return &SlogLogger{
		logger: slog.New(handler).With("service", Service),
		ctx:    context.Background(),
	}
}

// Nop discards everything
func Nop() *SlogLogger {
	return New(slog.LevelError+1, io.Discard)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if isSecret(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *SlogLogger) log(level slog.Level, msg string, args []any) {
	l.logger.Log(l.ctx, level, msg, args...)
}

// WithField returns a child logger carrying key=value on every record
func (l *SlogLogger) WithField(key string, value any) Logger {
	return l.with(key, value)
}

// WithFields is WithField for several keys. Keys are added in sorted order so
// records are stable between runs.
func (l *SlogLogger) WithFields(fields map[string]any) Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithContext returns a logger that passes ctx to the handler
func (l *SlogLogger) WithContext(ctx context.Context) Logger {
	return &SlogLogger{logger: l.logger, ctx: ctx}
}

func (l *SlogLogger) with(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...), ctx: l.ctx}
}
