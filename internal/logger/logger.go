// Package logger is the process-wide structured logger for filebox.
//
// It wraps log/slog behind package-level helpers so that every package logs
// with the same handler, level and field keys. The handler can be swapped at
// runtime (Init, SetLevel, SetFormat) without callers holding stale loggers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	format             = "text"
	output   io.Writer = os.Stdout
	closer   io.Closer
	useColor bool
	slogger  *slog.Logger
)

func init() {
	useColor = isTerminal(os.Stdout.Fd())
	reconfigure()
}

// reconfigure rebuilds the slog handler from the current settings.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(handler)
}

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var (
			w        io.Writer
			c        io.Closer
			colorful bool
		)

		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, colorful = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, colorful = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w, c = f, f
		}

		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		output, closer, useColor = w, c, colorful
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}

	reconfigure()
	return nil
}

// InitWithWriter initializes the logger with a custom io.Writer.
// This is primarily useful for testing.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	reconfigure()
}

// SetLevel sets the minimum log level. Unknown levels are ignored.
func SetLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}
}

// SetFormat sets the output format (text or json). Unknown formats are ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}
	mu.Lock()
	format = name
	mu.Unlock()
	reconfigure()
}

// Enabled reports whether records at lvl are currently emitted.
func Enabled(lvl slog.Level) bool {
	return lvl >= level.Level()
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at info level with structured fields
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at error level with structured fields
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// DebugCtx logs at debug level, prefixed with the LogContext fields in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if !Enabled(slog.LevelDebug) {
		return
	}
	get().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if !Enabled(slog.LevelInfo) {
		return
	}
	get().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level with context
func WarnCtx(ctx context.Context, msg string, args ...any) {
	get().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level with context
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	get().Error(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends LogContext fields so they appear first in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 12+len(args))
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SessionID != "" {
		out = append(out, KeySessionID, lc.SessionID)
	}
	if lc.Command != "" {
		out = append(out, KeyCommand, lc.Command)
	}
	if lc.ClientIP != "" {
		out = append(out, KeyClientIP, lc.ClientIP)
	}
	if lc.Username != "" {
		out = append(out, KeyUsername, lc.Username)
	}
	return append(out, args...)
}

// With returns a new slog.Logger with additional attributes
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
