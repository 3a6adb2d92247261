package filebox

import (
	"context"
	"os"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/internal/telemetry"
	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/sandbox"
)

// resolve confines input to the sandbox relative to the session directory.
func (s *Session) resolve(input string, req sandbox.Require) (string, error) {
	p, err := s.server.sandbox.Resolve(s.cwd, input, req)
	if err != nil {
		return "", adapter.NewError(adapter.KindPathRejected, err, "%s", err.Error())
	}
	return p, nil
}

// handleLs lists the names of the immediate entries of the current
// directory in name order. Every name sent is wire.Listable.
func (s *Session) handleLs(ctx context.Context) error {
	entries, err := os.ReadDir(s.cwd)
	if err != nil {
		return adapter.NewError(adapter.KindLocalFailure, err, "cannot list %s", s.server.sandbox.Virtual(s.cwd))
	}
	listed := 0
	for _, e := range entries {
		// Names that would read as protocol lines cannot be listed, and
		// uploads in progress are not visible.
		if !wire.Listable(e.Name()) || sandbox.IsTemp(e.Name()) {
			continue
		}
		if err := s.framer.WriteLine(e.Name()); err != nil {
			return adapter.NewError(adapter.KindIOFailure, err, "write listing")
		}
		listed++
	}
	telemetry.SetAttributes(ctx, telemetry.Entries(listed))
	return nil
}

// handleCd changes the session directory. On failure the directory is left
// unchanged.
func (s *Session) handleCd(ctx context.Context, arg string) error {
	dir, err := s.resolve(arg, sandbox.Dir)
	if err != nil {
		return err
	}
	s.cwd = dir
	virtual := s.server.sandbox.Virtual(dir)
	logger.DebugCtx(ctx, "Directory changed", logger.KeyPath, virtual)
	return s.writeReply(wire.ReplyChangedDir + virtual)
}

func (s *Session) handlePwd(_ context.Context) error {
	return s.writeReply(s.server.sandbox.Virtual(s.cwd))
}

func (s *Session) handleHelp(_ context.Context) error {
	if err := s.framer.WriteLines(wire.HelpLines()...); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write help")
	}
	return nil
}

// handleShowFiles lists indexed files, optionally only those under
// directories matching filter.
func (s *Session) handleShowFiles(ctx context.Context, filter string) error {
	entries := s.server.index.List(filter)
	for _, e := range entries {
		if err := s.framer.WriteLine(wire.ReplyFileEntry + e.Name()); err != nil {
			return adapter.NewError(adapter.KindIOFailure, err, "write file list")
		}
	}
	telemetry.SetAttributes(ctx, telemetry.Entries(len(entries)))
	logger.DebugCtx(ctx, "Index listed", logger.KeyPattern, filter, logger.KeyEntries, len(entries))
	return nil
}

func (s *Session) handleSearch(ctx context.Context, name string) error {
	location, found := s.server.index.Lookup(name)
	logger.DebugCtx(ctx, "Index searched", logger.KeyPattern, name, "found", found)
	if !found {
		return s.writeReply(wire.ReplyFileNotFound)
	}
	return s.writeReply(wire.ReplyFileFound + location)
}

func (s *Session) writeReply(line string) error {
	if err := s.framer.WriteLine(line); err != nil {
		return adapter.NewError(adapter.KindIOFailure, err, "write reply")
	}
	return nil
}
