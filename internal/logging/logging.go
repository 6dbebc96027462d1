package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

var (
	once sync.Once
	base *slog.Logger
)

// Options controls the global logger. An empty FilePath logs to stdout only.
type Options struct {
	Component string
	FilePath  string
	Level     string
}

// Init configures the global logger exactly once.
func Init(opts Options) *slog.Logger {
	once.Do(func() {
		var w io.Writer = os.Stdout
		if opts.FilePath != "" {
			_ = os.MkdirAll(filepath.Dir(opts.FilePath), 0o755)
			rot := &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    50, // MB
				MaxBackups: 3,
				MaxAge:     7, // days
			}
			w = io.MultiWriter(os.Stdout, rot)
		}

		base = build(w, opts)
	})
	return base
}

// build tags records with the process name under "service"; "component" is
// left to the loggers made by New.
func build(w io.Writer, opts Options) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	return slog.New(traceHandler{h}).With("service", opts.Component)
}

// Base returns the global logger, initializing a stdout logger if Init was not called.
func Base() *slog.Logger {
	if base == nil {
		return Init(Options{Component: "storefront"})
	}
	return base
}

// New returns a child logger derived from the global one.
func New(component string) *slog.Logger {
	return withComponent(Base(), component)
}

func withComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With("component", component)
}

// WithCtx stores a logger in ctx.
func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx fetches a logger from ctx or falls back to the global one.
func FromCtx(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// traceHandler adds trace_id and span_id of the active span to every record.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}
