// Package filebox serves the filebox line protocol: each accepted connection
// authenticates once and then issues commands that browse, search, upload
// and download files confined to one shared directory.
package filebox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/bufpool"
	"github.com/marmos91/filebox/pkg/index"
	"github.com/marmos91/filebox/pkg/metrics"
	"github.com/marmos91/filebox/pkg/sandbox"
)

// ProtocolName is reported in logs and by Protocol().
const ProtocolName = "filebox"

// Indexer is the file index consulted by showfiles and search. Lookups must
// be safe to call while a refresh runs.
type Indexer interface {
	Refresh(ctx context.Context) error
	Lookup(name string) (location string, found bool)
	List(filter string) []index.Entry
}

// upserter is implemented by indexers that can add a single file without a
// full refresh. Uploads use it when available.
type upserter interface {
	UpsertFile(ctx context.Context, abs string) error
}

// Config configures the filebox server.
type Config struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port. 0 picks an ephemeral port.
	Port int

	// MaxConnections bounds concurrent sessions. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds the graceful drain on shutdown.
	ShutdownTimeout time.Duration

	// MetricsLogInterval enables a periodic connection count log line.
	MetricsLogInterval time.Duration

	// AuthTimeout bounds how long a new connection may take to send its
	// credentials. 0 disables the deadline.
	AuthTimeout time.Duration

	// IdleTimeout closes sessions that send no command for this long.
	// 0 disables the deadline.
	IdleTimeout time.Duration

	// BufferSize is the copy buffer size for transfers.
	BufferSize int

	// MaxTransferSize rejects uploads declaring more bytes. 0 means
	// unlimited.
	MaxTransferSize int64

	// RefreshOnConnect rebuilds the index after each successful login.
	RefreshOnConnect bool
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.AuthTimeout < 0 {
		c.AuthTimeout = 0
	}
	if c.BufferSize <= 0 {
		c.BufferSize = bufpool.DefaultSize
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d", c.MaxConnections)
	}
	if c.MaxTransferSize < 0 {
		return fmt.Errorf("invalid max_transfer_size %d", c.MaxTransferSize)
	}
	return nil
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Sandbox *sandbox.Sandbox
	Auth    adapter.Authenticator
	Index   Indexer
	// Metrics is optional.
	Metrics metrics.FileboxMetrics
}

// Adapter is the filebox protocol server. It embeds the shared accept loop
// and hands each connection to a Session.
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	sandbox *sandbox.Sandbox
	auth    adapter.Authenticator
	index   Indexer
	metrics metrics.FileboxMetrics
	buffers *bufpool.Pool
}

// New builds a stopped Adapter. Call Serve to start accepting.
func New(cfg Config, deps Deps) (*Adapter, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid filebox config: %w", err)
	}
	if deps.Sandbox == nil {
		return nil, errors.New("filebox: sandbox is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("filebox: authenticator is required")
	}
	if deps.Index == nil {
		return nil, errors.New("filebox: index is required")
	}

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:        cfg.BindAddress,
		Port:               cfg.Port,
		MaxConnections:     cfg.MaxConnections,
		ShutdownTimeout:    cfg.ShutdownTimeout,
		MetricsLogInterval: cfg.MetricsLogInterval,
	}, ProtocolName)
	if deps.Metrics != nil {
		base.Metrics = deps.Metrics
	}

	return &Adapter{
		BaseAdapter: base,
		config:      cfg,
		sandbox:     deps.Sandbox,
		auth:        deps.Auth,
		index:       deps.Index,
		metrics:     deps.Metrics,
		buffers:     bufpool.New(cfg.BufferSize),
	}, nil
}

// Serve listens and blocks until ctx is cancelled or Stop is called.
func (a *Adapter) Serve(ctx context.Context) error {
	logger.Info("filebox server starting",
		logger.KeyRoot, a.sandbox.Root(),
		"address", a.Config.Addr(),
		"max_connections", a.config.MaxConnections,
		"refresh_on_connect", a.config.RefreshOnConnect)
	return a.ServeWithFactory(ctx, a, nil)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newSession(a, conn, uuid.NewString())
}

var _ adapter.Adapter = (*Adapter)(nil)
