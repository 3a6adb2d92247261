package filebox

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/internal/telemetry"
	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/metrics"
	"github.com/marmos91/filebox/pkg/sandbox"
)

const tempPattern = sandbox.TempPrefix + "*"

// handleDownload sends a regular file framed as
// BEGIN_FILE_TRANSFER, length, bytes, END_FILE_TRANSFER. Failures found
// before the begin marker are reported; failures after it close the session
// because the client is mid-payload.
func (s *Session) handleDownload(ctx context.Context, arg string) error {
	path, err := s.resolve(arg, sandbox.Regular)
	if err != nil {
		return err
	}
	virtual := s.server.sandbox.Virtual(path)

	f, err := os.Open(path)
	if err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot open %s", virtual)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot stat %s", virtual)
	}
	size := info.Size()

	if err := s.framer.WriteMarker(wire.MarkerBeginTransfer); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write %s", wire.MarkerBeginTransfer)
	}
	n, err := s.framer.SendPayload(f, size)
	s.recordBytes(metrics.DirectionDownload, n)
	if err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "send %s", virtual)
	}
	if err := s.framer.WriteMarker(wire.MarkerEndTransfer); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write %s", wire.MarkerEndTransfer)
	}

	telemetry.SetAttributes(ctx, telemetry.Path(virtual), telemetry.Bytes(n))
	logger.InfoCtx(ctx, "File downloaded", logger.KeyPath, virtual, logger.KeyBytes, n)
	return nil
}

// handleUpload receives a file. The payload is written to a temporary file
// in the target directory and renamed over the target only after the full
// payload and END_FILE_UPLOAD arrived, so a failed upload never leaves a
// partial file behind.
func (s *Session) handleUpload(ctx context.Context, arg string) error {
	target, err := s.resolve(arg, sandbox.Creatable)
	if err != nil {
		return err
	}
	virtual := s.server.sandbox.Virtual(target)
	if !wire.Listable(filepath.Base(target)) {
		return adapter.NewError(adapter.KindPathRejected, sandbox.ErrReserved, "%s: %s", virtual, sandbox.ErrReserved)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), tempPattern)
	if err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot create %s", virtual)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := s.framer.WriteMarker(wire.MarkerBeginUpload); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write %s", wire.MarkerBeginUpload)
	}
	if err := s.framer.Flush(); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write %s", wire.MarkerBeginUpload)
	}

	n, recvErr := s.framer.ReceivePayload(tmp)
	s.recordBytes(metrics.DirectionUpload, n)

	var sinkErr *wire.SinkError
	switch {
	case recvErr == nil:
	case errors.Is(recvErr, wire.ErrInvalidLength):
		// Nothing can be known about what follows; leave it to be read as
		// commands.
		return adapter.NewError(adapter.KindProtocolViolation, recvErr, "invalid upload length")
	case errors.Is(recvErr, wire.ErrPayloadTooLarge), errors.As(recvErr, &sinkErr):
		// The payload was drained, so the end marker is next.
		if err := s.expectEndUpload(); err != nil {
			return err
		}
		if sinkErr != nil {
			return adapter.NewError(adapter.KindLocalFailure, sinkErr, "cannot write %s", virtual)
		}
		return adapter.NewError(adapter.KindProtocolViolation, recvErr, "%s", recvErr.Error())
	default:
		return adapter.NewError(adapter.KindIOFailure, recvErr, "receive %s", virtual)
	}

	if err := s.expectEndUpload(); err != nil {
		return err
	}

	// CreateTemp uses 0600.
	if err := tmp.Chmod(0o644); err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot write %s", virtual)
	}
	if err := tmp.Sync(); err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot write %s", virtual)
	}
	if err := tmp.Close(); err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot write %s", virtual)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot store %s", virtual)
	}
	committed = true

	if up, ok := s.server.index.(upserter); ok {
		if err := up.UpsertFile(ctx, target); err != nil {
			logger.WarnCtx(ctx, "Failed to index uploaded file", logger.KeyPath, virtual, logger.KeyError, err)
		}
	}

	telemetry.SetAttributes(ctx, telemetry.Path(virtual), telemetry.Bytes(n))
	logger.InfoCtx(ctx, "File uploaded", logger.KeyPath, virtual, logger.KeyBytes, n)
	return s.writeReply(wire.ReplyUploadComplete + arg)
}

// expectEndUpload reads the upload terminator. A different line is a
// protocol violation; a stream error is terminal.
func (s *Session) expectEndUpload() error {
	err := s.framer.ExpectMarker(wire.MarkerEndUpload)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wire.ErrUnexpectedMarker):
		return adapter.NewError(adapter.KindProtocolViolation, err,
			"upload ended unexpectedly (missing %s)", wire.MarkerEndUpload)
	default:
		return adapter.NewError(adapter.KindIOFailure, err, "read %s", wire.MarkerEndUpload)
	}
}

func (s *Session) recordBytes(direction string, n int64) {
	if s.server.metrics != nil {
		s.server.metrics.RecordBytes(direction, n)
	}
}
