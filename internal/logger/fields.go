package logger

import (
	"log/slog"
)

// Standard field keys. Use these consistently so logs can be aggregated and
// queried across the server, the client and the CLI tools.
const (
	KeyTraceID = "trace_id" // OpenTelemetry trace ID

	// Session & connection
	KeySessionID  = "session_id"  // Per-connection session identifier
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientAddr = "client_addr" // Client ip:port
	KeyUsername   = "username"    // Authenticated username
	KeyActive     = "active"      // Active connection count

	// Protocol
	KeyCommand  = "command"  // Protocol verb: ls, cd, upload, ...
	KeyArgument = "argument" // Raw command argument
	KeyOutcome  = "outcome"  // ok, rejected, violation, io_error, invalid
	KeyMarker   = "marker"   // Transfer marker seen on the wire

	// Filesystem
	KeyPath    = "path"    // Sandboxed path
	KeyRoot    = "root"    // Sandbox root
	KeySize    = "size"    // File size in bytes
	KeyBytes   = "bytes"   // Bytes moved over the wire
	KeyEntries = "entries" // Number of directory or index entries
	KeyPattern = "pattern" // Search/filter pattern

	// Index
	KeyBackend = "backend" // memory, badger, static, database
	KeyRefresh = "refresh" // Refresh policy

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// SessionID returns a slog.Attr for the session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientAddr returns a slog.Attr for the remote address
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// Username returns a slog.Attr for username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Command returns a slog.Attr for a protocol verb
func Command(verb string) slog.Attr {
	return slog.String(KeyCommand, verb)
}

// Outcome returns a slog.Attr for a command outcome
func Outcome(o string) slog.Attr {
	return slog.String(KeyOutcome, o)
}

// Path returns a slog.Attr for file/directory path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Size returns a slog.Attr for file size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Bytes returns a slog.Attr for transferred bytes
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// Entries returns a slog.Attr for number of entries
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// Pattern returns a slog.Attr for search/filter pattern
func Pattern(p string) slog.Attr {
	return slog.String(KeyPattern, p)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
