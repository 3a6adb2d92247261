// Package adapter holds the protocol-independent server plumbing: the adapter
// lifecycle contract, the shared TCP accept loop and the error taxonomy that
// sessions use to decide whether a failure ends the connection.
package adapter

import (
	"context"
)

// Adapter is a protocol server that can be started and stopped by the
// process that owns it.
//
// Lifecycle:
//  1. Creation: the adapter is built with its configuration and collaborators
//  2. Startup: Serve() listens and blocks until shutdown
//  3. Shutdown: Stop() (or cancelling Serve's context) drains connections
//
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve starts the protocol server and blocks until ctx is cancelled or
	// the listener fails. It returns nil after a graceful shutdown.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown and waits for active sessions until
	// ctx is done.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logs and metrics.
	Protocol() string

	// Port returns the configured TCP port (0 means an ephemeral port).
	Port() int
}
