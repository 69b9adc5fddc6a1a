package mediapool

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with mediapool-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithKey adds a media key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// WithIndex adds a page index field to the logger.
func (l *Logger) WithIndex(index int) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", index),
	}
}

// LogOpen logs feed startup.
func (l *Logger) LogOpen(ctx context.Context, cacheDir string, capacity int64, radius int) {
	if cacheDir == "" {
		cacheDir = "(memory)"
	}
	l.InfoContext(ctx, "feed opened",
		"cache_dir", cacheDir,
		"capacity", capacity,
		"radius", radius,
	)
}

// LogRead logs a Read served through the feed.
func (l *Logger) LogRead(ctx context.Context, key string, bytes int, err error) {
	log := l.WithKey(key)
	if err != nil {
		log.ErrorContext(ctx, "read failed",
			"error", err,
		)
	} else {
		log.DebugContext(ctx, "read completed",
			"bytes", bytes,
		)
	}
}

// LogRetry logs a retry request for a failed page.
func (l *Logger) LogRetry(ctx context.Context, index int, accepted bool, err error) {
	log := l.WithIndex(index)
	if err != nil {
		log.WarnContext(ctx, "retry failed",
			"error", err,
		)
	} else {
		log.InfoContext(ctx, "retry requested",
			"accepted", accepted,
		)
	}
}

// LogClose logs feed shutdown.
func (l *Logger) LogClose(ctx context.Context, entries int, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "feed close failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "feed closed",
			"entries", entries,
			"bytes", size,
		)
	}
}
