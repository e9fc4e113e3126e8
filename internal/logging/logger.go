package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin wrapper over slog that carries request-scoped fields
type Logger struct {
	*slog.Logger
}

// Options controls where log records go
type Options struct {
	Development bool
	// File, when set, receives a JSON copy of every record, rotated by size
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds a logger writing to stdout. Development mode uses the
// text handler at debug level; otherwise JSON at info level.
func NewLogger(development bool) *Logger {
	return New(Options{Development: development})
}

// New builds a logger from options
func New(opts Options) *Logger {
	level := slog.LevelInfo
	if opts.Development {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	var handler slog.Handler
	if opts.Development && opts.File == "" {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewWithHandler wraps an existing slog handler. Used by tests to capture output.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{Logger: slog.New(h)}
}

// WithFields returns a child logger with the given key/value pairs attached
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}
