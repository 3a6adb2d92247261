package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler answers each line with the same line until the peer closes.
type echoHandler struct {
	conn net.Conn
}

func (h *echoHandler) Serve(ctx context.Context) {
	r := bufio.NewReader(h.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if line == "panic\n" {
			panic("boom")
		}
		if _, err := h.conn.Write([]byte(line)); err != nil {
			return
		}
	}
}

type countingMetrics struct {
	accepted, closed, forced, panics atomic.Int32
	active                           atomic.Int32
}

func (m *countingMetrics) RecordConnectionAccepted()    { m.accepted.Add(1) }
func (m *countingMetrics) RecordConnectionClosed()      { m.closed.Add(1) }
func (m *countingMetrics) RecordConnectionForceClosed() { m.forced.Add(1) }
func (m *countingMetrics) RecordSessionPanic()          { m.panics.Add(1) }
func (m *countingMetrics) SetActiveConnections(n int32) { m.active.Store(n) }

func startBase(t *testing.T, cfg BaseConfig) (*BaseAdapter, *countingMetrics, context.CancelFunc, <-chan error) {
	t.Helper()
	cfg.BindAddress = "127.0.0.1"
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	b := NewBaseAdapter(cfg, "TEST")
	m := &countingMetrics{}
	b.Metrics = m

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.ServeWithFactory(ctx, ConnectionFactoryFunc(func(c net.Conn) ConnectionHandler {
			return &echoHandler{conn: c}
		}), nil)
	}()

	require.NotEmpty(t, b.GetListenerAddr())
	t.Cleanup(cancel)
	return b, m, cancel, errCh
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, bufio.NewReader(c)
}

func echo(t *testing.T, c net.Conn, r *bufio.Reader, msg string) {
	t.Helper()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := fmt.Fprintf(c, "%s\n", msg)
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, msg+"\n", line)
}

func TestBaseAdapterServesConcurrentSessions(t *testing.T) {
	b, m, cancel, errCh := startBase(t, BaseConfig{})
	addr := b.GetListenerAddr()

	c1, r1 := dial(t, addr)
	c2, r2 := dial(t, addr)
	echo(t, c1, r1, "one")
	echo(t, c2, r2, "two")
	echo(t, c1, r1, "three")

	assert.Equal(t, int32(2), b.GetActiveConnections())
	assert.Equal(t, int32(2), m.accepted.Load())

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, int32(0), b.GetActiveConnections())
}

func TestBaseAdapterConnectionLimitBlocksAccept(t *testing.T) {
	b, _, _, _ := startBase(t, BaseConfig{MaxConnections: 1})
	addr := b.GetListenerAddr()

	c1, r1 := dial(t, addr)
	echo(t, c1, r1, "first")

	// The second dial completes at TCP level (kernel backlog) but is not
	// served until the first session ends.
	c2, r2 := dial(t, addr)
	require.NoError(t, c2.SetDeadline(time.Now().Add(300*time.Millisecond)))
	_, err := fmt.Fprintf(c2, "waiting\n")
	require.NoError(t, err)
	_, err = r2.ReadString('\n')
	var ne net.Error
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "expected timeout, got %v", err)

	require.NoError(t, c1.Close())

	require.NoError(t, c2.SetDeadline(time.Now().Add(2*time.Second)))
	line, err := r2.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "waiting\n", line)
}

func TestBaseAdapterRecoversSessionPanic(t *testing.T) {
	b, m, _, _ := startBase(t, BaseConfig{})
	addr := b.GetListenerAddr()

	c1, _ := dial(t, addr)
	_, err := fmt.Fprintf(c1, "panic\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.panics.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The server keeps serving other sessions.
	c2, r2 := dial(t, addr)
	echo(t, c2, r2, "still alive")
}

func TestBaseAdapterStopInterruptsIdleSessions(t *testing.T) {
	b, m, _, errCh := startBase(t, BaseConfig{})
	addr := b.GetListenerAddr()

	c, r := dial(t, addr)
	echo(t, c, r, "hello")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, <-errCh)
	assert.Equal(t, int32(1), m.closed.Load())

	// Stop is idempotent.
	require.NoError(t, b.Stop(ctx))
}

func TestBaseAdapterListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	port := busy.Addr().(*net.TCPAddr).Port
	b := NewBaseAdapter(BaseConfig{BindAddress: "127.0.0.1", Port: port}, "TEST")

	err = b.ServeWithFactory(context.Background(), ConnectionFactoryFunc(func(c net.Conn) ConnectionHandler {
		return &echoHandler{conn: c}
	}), nil)
	require.Error(t, err)
	assert.Empty(t, b.GetListenerAddr())
}

func TestBaseConfigAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:2121", BaseConfig{BindAddress: "127.0.0.1", Port: 2121}.Addr())
	assert.Equal(t, ":0", BaseConfig{}.Addr())
	assert.Equal(t, "[::1]:80", BaseConfig{BindAddress: "::1", Port: 80}.Addr())
}

func TestProtocolError(t *testing.T) {
	cause := errors.New("disk gone")
	err := fmt.Errorf("upload: %w", NewError(KindIOFailure, cause, "write %s", "a.txt"))

	pe, ok := AsProtocolError(err)
	require.True(t, ok)
	assert.True(t, pe.Terminal())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "write a.txt", pe.Message)
	assert.Contains(t, pe.Error(), "io_failure")

	assert.Equal(t, KindPathRejected, KindOf(NewError(KindPathRejected, nil, "nope")))
	assert.Equal(t, KindIOFailure, KindOf(errors.New("raw")))
	assert.False(t, KindProtocolViolation.Terminal())
	assert.False(t, KindLocalFailure.Terminal())
	assert.Equal(t, "local_failure", KindLocalFailure.String())
	assert.True(t, KindAuthFailure.Terminal())
}
