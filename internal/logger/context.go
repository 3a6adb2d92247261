package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds session-scoped logging context. A session creates one on
// accept and derives per-command copies with WithCommand.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SessionID string    // Per-connection session identifier
	ClientIP  string    // Client IP address (without port)
	Username  string    // Authenticated user, empty before login
	Command   string    // Current protocol verb (ls, download, ...)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a client connection.
func NewLogContext(sessionID, clientIP string) *LogContext {
	return &LogContext{
		SessionID: sessionID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithCommand returns a copy with the command set and the clock restarted.
func (lc *LogContext) WithCommand(command string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Command = command
		c.StartTime = time.Now()
	}
	return c
}

// WithUser returns a copy with the authenticated username set.
func (lc *LogContext) WithUser(username string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Username = username
	}
	return c
}

// WithTrace returns a copy with the trace ID set.
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
	}
	return c
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
