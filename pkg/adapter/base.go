package adapter

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/filebox/internal/logger"
)

// ConnectionHandler serves one accepted connection. Serve blocks until the
// session ends or ctx is cancelled; it does not need to close the conn.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates a ConnectionHandler per accepted connection.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// ConnectionFactoryFunc adapts a function to ConnectionFactory.
type ConnectionFactoryFunc func(conn net.Conn) ConnectionHandler

// NewConnection calls f.
func (f ConnectionFactoryFunc) NewConnection(conn net.Conn) ConnectionHandler { return f(conn) }

// BaseConfig holds the listener settings shared by protocol adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks an ephemeral port.
	Port int

	// MaxConnections bounds concurrently served connections. When the bound
	// is reached the accept loop stops accepting until a slot frees.
	// 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds how long Serve waits for sessions to finish
	// after shutdown starts before force-closing them.
	ShutdownTimeout time.Duration

	// MetricsLogInterval enables a periodic log line with the active
	// connection count. 0 disables it.
	MetricsLogInterval time.Duration
}

// Addr returns the host:port listen address.
func (c BaseConfig) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// MetricsRecorder receives connection lifecycle events. A nil recorder
// disables collection.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	RecordSessionPanic()
	SetActiveConnections(count int32)
}

// BaseAdapter runs the TCP accept loop and owns connection tracking and
// graceful shutdown. Protocol adapters embed it and supply a factory.
//
// All exported methods are safe for concurrent use. Shutdown is idempotent.
type BaseAdapter struct {
	Config BaseConfig

	protocolName string

	// Metrics is optional.
	Metrics MetricsRecorder

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once Serve has either bound its listener or
	// failed to. Tests wait on it through GetListenerAddr.
	ListenerReady chan struct{}
	readyOnce     sync.Once

	activeConns  sync.WaitGroup
	ConnCount    atomic.Int32
	shutdownOnce sync.Once

	// Shutdown is closed when shutdown begins.
	Shutdown chan struct{}

	// connSemaphore holds one token per served connection. nil = unlimited.
	connSemaphore chan struct{}

	// ShutdownCtx is handed to every session and cancelled on shutdown.
	ShutdownCtx    context.Context
	CancelRequests context.CancelFunc

	// ActiveConnections maps remote address to net.Conn for force-close.
	ActiveConnections sync.Map
}

// NewBaseAdapter creates a stopped BaseAdapter.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var sem chan struct{}
	if config.MaxConnections > 0 {
		sem = make(chan struct{}, config.MaxConnections)
	}
	logger.Debug(protocol+" connection limit", "max_connections", config.MaxConnections)

	shutdownCtx, cancel := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		Shutdown:       make(chan struct{}),
		connSemaphore:  sem,
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancel,
		ListenerReady:  make(chan struct{}),
	}
}

func (b *BaseAdapter) markReady() {
	b.readyOnce.Do(func() { close(b.ListenerReady) })
}

// ServeWithFactory listens on Config.Addr() and serves every accepted
// connection on its own goroutine until ctx is cancelled or Stop is called.
//
// onAccept, if non-nil, runs on the accept goroutine before the session
// starts; returning false rejects the connection.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory, onAccept func(net.Conn) bool) error {
	listener, err := net.Listen("tcp", b.Config.Addr())
	if err != nil {
		b.markReady()
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, b.Config.Addr(), err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	b.markReady()

	logger.Info(b.protocolName+" server listening", "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", logger.KeyError, ctx.Err())
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			b.release()
			select {
			case <-b.Shutdown:
				return b.gracefulShutdown()
			default:
				logger.Debug("Error accepting "+b.protocolName+" connection", logger.KeyError, err)
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.KeyError, err)
			}
		}

		if onAccept != nil && !onAccept(tcpConn) {
			_ = tcpConn.Close()
			b.release()
			continue
		}

		b.activeConns.Add(1)
		active := b.ConnCount.Add(1)
		addr := tcpConn.RemoteAddr().String()
		b.ActiveConnections.Store(addr, tcpConn)

		if b.Metrics != nil {
			b.Metrics.RecordConnectionAccepted()
			b.Metrics.SetActiveConnections(active)
		}
		logger.Debug(b.protocolName+" connection accepted", logger.KeyClientAddr, addr, logger.KeyActive, active)

		handler := factory.NewConnection(tcpConn)
		go b.serveConn(addr, tcpConn, handler)
	}
}

// serveConn runs one session and releases its slot however it ends.
func (b *BaseAdapter) serveConn(addr string, conn net.Conn, handler ConnectionHandler) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(b.protocolName+" session panic recovered",
				logger.KeyClientAddr, addr, "panic", r, "stack", string(debug.Stack()))
			if b.Metrics != nil {
				b.Metrics.RecordSessionPanic()
			}
		}

		_ = conn.Close()
		b.ActiveConnections.Delete(addr)
		active := b.ConnCount.Add(-1)
		if b.Metrics != nil {
			b.Metrics.RecordConnectionClosed()
			b.Metrics.SetActiveConnections(active)
		}
		logger.Debug(b.protocolName+" connection closed", logger.KeyClientAddr, addr, logger.KeyActive, active)

		b.release()
		b.activeConns.Done()
	}()

	handler.Serve(b.ShutdownCtx)
}

func (b *BaseAdapter) release() {
	if b.connSemaphore != nil {
		<-b.connSemaphore
	}
}

// initiateShutdown stops the accept loop, closes the listener, interrupts
// blocked reads and cancels ShutdownCtx. Safe to call repeatedly.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")
		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.KeyError, err)
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.CancelRequests()
	})
}

// interruptBlockingReads sets a short read deadline on every session so that
// sessions blocked waiting for the next command notice shutdown.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline", logger.KeyClientAddr, key, logger.KeyError, err)
			}
		}
		return true
	})
}

// waitSessions returns a channel closed when all sessions have ended.
func (b *BaseAdapter) waitSessions() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()
	return done
}

// gracefulShutdown waits up to ShutdownTimeout for sessions, then
// force-closes whatever remains.
func (b *BaseAdapter) gracefulShutdown() error {
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		logger.KeyActive, b.ConnCount.Load(), "timeout", b.Config.ShutdownTimeout)

	var timeout <-chan time.Time
	if b.Config.ShutdownTimeout > 0 {
		timer := time.NewTimer(b.Config.ShutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-b.waitSessions():
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil
	case <-timeout:
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded, forcing closure",
			logger.KeyActive, remaining, "timeout", b.Config.ShutdownTimeout)
		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

func (b *BaseAdapter) forceCloseConnections() {
	closed := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.KeyClientAddr, key, logger.KeyError, err)
			return true
		}
		closed++
		if b.Metrics != nil {
			b.Metrics.RecordConnectionForceClosed()
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed connections", "count", closed)
	}
}

// Stop initiates shutdown and waits for sessions until ctx is done. With a
// nil ctx it falls back to the configured ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	select {
	case <-b.waitSessions():
		return nil
	case <-ctx.Done():
		b.forceCloseConnections()
		return ctx.Err()
	}
}

func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.Shutdown:
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" metrics", "active_connections", b.ConnCount.Load())
		}
	}
}

// GetActiveConnections returns the number of sessions being served.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// GetListenerAddr blocks until Serve has bound (or failed to bind) and
// returns the actual listen address, or "" on failure.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}
