package filebox

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/internal/telemetry"
	"github.com/marmos91/filebox/pkg/adapter"
)

// Command outcomes used in logs, spans and metrics.
const (
	outcomeOK        = "ok"
	outcomeInvalid   = "invalid"
	outcomeUsage     = "usage"
	outcomeRejected  = "rejected"
	outcomeViolation = "violation"
	outcomeLocal     = "local_error"
	outcomeIOError   = "io_error"
)

// Session is one client connection. It moves from unauthenticated to
// authenticated once and then serves one command at a time; it is only ever
// touched by its own goroutine.
type Session struct {
	server *Adapter
	conn   net.Conn
	framer *wire.Framer
	id     string

	username string
	// cwd is always the sandbox root or a directory beneath it.
	cwd string
}

func newSession(server *Adapter, conn net.Conn, id string) *Session {
	return &Session{
		server: server,
		conn:   conn,
		id:     id,
		cwd:    server.sandbox.Root(),
		framer: wire.NewFramer(conn, wire.Options{
			MaxTransferSize: server.config.MaxTransferSize,
			Buffers:         server.buffers,
		}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Serve runs the session until the peer disconnects, a terminal error
// occurs or ctx is cancelled. The dispatcher closes the connection.
func (s *Session) Serve(ctx context.Context) {
	clientAddr := s.conn.RemoteAddr().String()
	clientIP := clientAddr
	if host, _, err := net.SplitHostPort(clientAddr); err == nil {
		clientIP = host
	}

	ctx, span := telemetry.StartSessionSpan(ctx, s.id, clientAddr)
	defer span.End()

	lc := logger.NewLogContext(s.id, clientIP).WithTrace(telemetry.TraceID(ctx))
	ctx = logger.WithContext(ctx, lc)
	logger.DebugCtx(ctx, "Session opened", logger.KeyClientAddr, clientAddr)

	if err := s.authenticate(ctx); err != nil {
		telemetry.RecordError(ctx, err)
		s.logEnd(ctx, err)
		return
	}
	ctx = logger.WithContext(ctx, lc.WithUser(s.username))
	telemetry.SetAttributes(ctx, telemetry.Username(s.username))

	if s.server.config.RefreshOnConnect {
		if err := s.server.index.Refresh(ctx); err != nil {
			logger.WarnCtx(ctx, "Index refresh on connect failed", logger.KeyError, err)
		}
	}

	for {
		if ctx.Err() != nil {
			logger.DebugCtx(ctx, "Session closed by server shutdown")
			return
		}

		line, err := s.readCommand()
		if err != nil {
			s.logEnd(ctx, err)
			return
		}

		if err := s.dispatch(ctx, wire.ParseCommand(line)); err != nil {
			s.logEnd(ctx, err)
			return
		}
	}
}

// readCommand waits for the next command line under the idle deadline.
func (s *Session) readCommand() (string, error) {
	if idle := s.server.config.IdleTimeout; idle > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(idle))
	}
	line, err := s.framer.ReadLine()
	if err != nil {
		return "", err
	}
	// Transfers are not bounded by the idle deadline. A shutdown that
	// started meanwhile re-arms its own deadline.
	if s.server.config.IdleTimeout > 0 {
		select {
		case <-s.server.Shutdown:
		default:
			_ = s.conn.SetReadDeadline(time.Time{})
		}
	}
	return line, nil
}

// authenticate reads the username and password lines and replies SUCCESS or
// FAILURE. Any failure is terminal; there is no retry.
func (s *Session) authenticate(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanAuth)
	defer span.End()

	if t := s.server.config.AuthTimeout; t > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(t))
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	}

	username, err := s.framer.ReadLine()
	if err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "read username")
	}
	password, err := s.framer.ReadLine()
	if err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "read password")
	}

	ok, authErr := s.server.auth.Authenticate(ctx, username, password)
	result := "success"
	switch {
	case authErr != nil:
		result = "error"
		ok = false
	case !ok:
		result = "failure"
	}
	if s.server.metrics != nil {
		s.server.metrics.RecordAuth(result)
	}

	reply := wire.AuthFailure
	if ok {
		reply = wire.AuthSuccess
	}
	if err := s.framer.WriteLine(reply); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write auth reply")
	}
	if err := s.framer.Flush(); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write auth reply")
	}

	if !ok {
		if authErr != nil {
			logger.ErrorCtx(ctx, "Authentication backend failed", logger.KeyUsername, username, logger.KeyError, authErr)
		}
		return adapter.NewError(adapter.KindAuthFailure, authErr, "authentication failed for %q", username)
	}

	s.username = username
	logger.InfoCtx(ctx, "Client authenticated", logger.KeyUsername, username)
	return nil
}

// dispatch runs one command and always terminates its reply with END unless
// the session must close. A non-nil return ends the session.
func (s *Session) dispatch(ctx context.Context, cmd wire.Command) error {
	lc := logger.FromContext(ctx).WithCommand(cmd.Verb.String())
	ctx = logger.WithContext(ctx, lc)
	ctx, span := telemetry.StartCommandSpan(ctx, cmd.Verb.String(), cmd.Arg)
	defer span.End()
	start := time.Now()

	var (
		outcome = outcomeOK
		err     error
	)
	switch {
	case cmd.Verb == wire.VerbInvalid:
		outcome = outcomeInvalid
		err = s.framer.WriteLine(wire.ReplyInvalidCommand)
	case cmd.Verb.RequiresArgument() && cmd.Arg == "":
		outcome = outcomeUsage
		err = s.framer.WriteLine(cmd.Verb.Usage())
	default:
		err = s.handle(ctx, cmd)
	}

	if err != nil {
		pe, ok := adapter.AsProtocolError(err)
		if !ok {
			pe = adapter.NewError(adapter.KindIOFailure, err, "write reply")
		}
		outcome = outcomeFor(pe.Kind)
		telemetry.RecordError(ctx, pe)

		if pe.Terminal() {
			s.record(ctx, cmd, outcome, start)
			return pe
		}
		logger.DebugCtx(ctx, "Command failed", logger.KeyArgument, cmd.Arg, logger.KeyOutcome, outcome, logger.KeyError, pe)
		if werr := s.framer.WriteLine(wire.ReplyErrorPrefix + pe.Message); werr != nil {
			s.record(ctx, cmd, outcomeIOError, start)
			return adapter.NewError(adapter.KindIOFailure, werr, "write error reply")
		}
	}

	if err := s.framer.End(); err != nil {
		s.record(ctx, cmd, outcomeIOError, start)
		return adapter.NewError(adapter.KindIOFailure, err, "write END")
	}
	s.record(ctx, cmd, outcome, start)
	return nil
}

func (s *Session) handle(ctx context.Context, cmd wire.Command) error {
	switch cmd.Verb {
	case wire.VerbLs:
		return s.handleLs(ctx)
	case wire.VerbCd:
		return s.handleCd(ctx, cmd.Arg)
	case wire.VerbPwd:
		return s.handlePwd(ctx)
	case wire.VerbHelp:
		return s.handleHelp(ctx)
	case wire.VerbShowFiles:
		return s.handleShowFiles(ctx, cmd.Arg)
	case wire.VerbSearch:
		return s.handleSearch(ctx, cmd.Arg)
	case wire.VerbUpload:
		return s.handleUpload(ctx, cmd.Arg)
	case wire.VerbDownload:
		return s.handleDownload(ctx, cmd.Arg)
	default:
		return s.framer.WriteLine(wire.ReplyInvalidCommand)
	}
}

func (s *Session) record(ctx context.Context, cmd wire.Command, outcome string, start time.Time) {
	elapsed := time.Since(start)
	telemetry.SetAttributes(ctx, telemetry.Outcome(outcome))
	if s.server.metrics != nil {
		s.server.metrics.RecordCommand(cmd.Verb.String(), outcome, elapsed)
	}
	logger.DebugCtx(ctx, "Command completed",
		logger.KeyOutcome, outcome,
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0)
}

func outcomeFor(kind adapter.ErrorKind) string {
	switch kind {
	case adapter.KindPathRejected:
		return outcomeRejected
	case adapter.KindProtocolViolation:
		return outcomeViolation
	case adapter.KindLocalFailure:
		return outcomeLocal
	default:
		return outcomeIOError
	}
}

// logEnd logs why the session ended at a level matching the cause.
func (s *Session) logEnd(ctx context.Context, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.DebugCtx(ctx, "Session closed by client")
	case errors.As(err, &ne) && ne.Timeout():
		logger.DebugCtx(ctx, "Session timed out", logger.KeyError, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		logger.DebugCtx(ctx, "Session timed out", logger.KeyError, err)
	case adapter.KindOf(err) == adapter.KindAuthFailure:
		logger.InfoCtx(ctx, "Session rejected", logger.KeyError, err)
	default:
		logger.WarnCtx(ctx, "Session ended with error", logger.KeyError, err)
	}
}
