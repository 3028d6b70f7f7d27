// Package logging provides structured logging for hivewatch.
//
// It wraps log/slog so that every component logs through the same handler.
// Output is text or JSON, the level comes from config, and each package
// holds a component logger:
//
//	var log = logging.Component("store")
//	log.Info("stale events evicted", "removed", n)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger writing to stderr.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stderr, level, jsonFormat)
}

// InitWriter initializes the global logger on an arbitrary writer.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Component returns a logger for a specific component.
//
// Component loggers are created at package init, before main has configured
// the handler, so the returned logger resolves the global handler lazily on
// every record.
func Component(name string) *slog.Logger {
	return slog.New(lazyHandler{attrs: []slog.Attr{slog.String("component", name)}})
}

// lazyHandler forwards records to whatever Logger is current.
type lazyHandler struct {
	attrs []slog.Attr
	group string
}

func (h lazyHandler) target() slog.Handler {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	t := Logger.Handler()
	if h.group != "" {
		t = t.WithGroup(h.group)
	}
	return t.WithAttrs(h.attrs)
}

func (h lazyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.target().Enabled(ctx, level)
}

func (h lazyHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h lazyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return lazyHandler{attrs: merged, group: h.group}
}

func (h lazyHandler) WithGroup(name string) slog.Handler {
	if h.group != "" {
		name = h.group + "." + name
	}
	return lazyHandler{attrs: h.attrs, group: name}
}

// WithContext returns a logger that includes request-scoped values.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if remote, ok := ctx.Value(contextKeyRemote).(string); ok {
		logger = logger.With("remote", remote)
	}
	if requestID, ok := ctx.Value(contextKeyRequestID).(uint64); ok {
		logger = logger.With("request_id", requestID)
	}
	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyRemote contextKey = iota
	contextKeyRequestID
)

// ContextWithRemote adds the peer address of a connection to the context.
func ContextWithRemote(ctx context.Context, remote string) context.Context {
	return context.WithValue(ctx, contextKeyRemote, remote)
}

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID uint64) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
