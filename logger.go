package weightpack

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with weightpack-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithFile adds a filename field to the logger.
func (l *Logger) WithFile(filename string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", filename),
	}
}

func megabytesPerSecond(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) * 1e-6 / d.Seconds()
}

// LogCompress logs the compression of one tensor. Throughput is measured on
// the float32 input.
func (l *Logger) LogCompress(ctx context.Context, name, representation string, elements int, d time.Duration) {
	l.DebugContext(ctx, "tensor compressed",
		"tensor", name,
		"representation", representation,
		"elements", elements,
		"mb_per_sec", megabytesPerSecond(4*int64(elements), d),
	)
}

// LogWrite logs writing a cache file.
func (l *Logger) LogWrite(ctx context.Context, filename string, blobs int, bytes int64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache write failed",
			"file", filename,
			"blobs", blobs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cache written",
			"file", filename,
			"blobs", blobs,
			"bytes", bytes,
			"mb_per_sec", megabytesPerSecond(bytes, d),
		)
	}
}

// LogLoad logs reading a cache file.
func (l *Logger) LogLoad(ctx context.Context, filename string, blobs int, bytes int64, d time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "cache load failed",
			"file", filename,
			"blobs", blobs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cache loaded",
			"file", filename,
			"blobs", blobs,
			"bytes", bytes,
			"mb_per_sec", megabytesPerSecond(bytes, d),
		)
	}
}

// LogCacheMiss logs falling back to recompression.
func (l *Logger) LogCacheMiss(ctx context.Context, filename string, err error) {
	l.InfoContext(ctx, "cached weights unusable, compressing",
		"file", filename,
		"reason", err,
	)
}
