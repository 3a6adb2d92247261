package client

import (
	"errors"
	"strings"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
)

var (
	// ErrAuthFailed is returned by Login when the server replies FAILURE.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotLoggedIn is returned by commands issued before Login.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrInvalidArgument is returned for arguments that cannot be sent on a
	// single line.
	ErrInvalidArgument = errors.New("argument must not contain a line break")

	// ErrTransferCommand is returned by Exec for upload and download, which
	// need the transfer methods.
	ErrTransferCommand = errors.New("use Upload or Download for file transfers")

	// ErrLocalFile is wrapped around failures of the local side of a
	// transfer.
	ErrLocalFile = errors.New("local file")
)

// ReplyError is a server reply reporting a failed command. Lines holds the
// reply without the END terminator.
type ReplyError struct {
	Lines []string
}

// Error returns the server's message.
func (e *ReplyError) Error() string {
	if len(e.Lines) == 0 {
		return "command failed"
	}
	return strings.TrimPrefix(strings.Join(e.Lines, "; "), wire.ReplyErrorPrefix)
}

// IsInvalidCommand reports whether the server did not recognize the verb.
func (e *ReplyError) IsInvalidCommand() bool {
	return len(e.Lines) == 1 && e.Lines[0] == wire.ReplyInvalidCommand
}

// IsUsage reports whether the server rejected a missing argument.
func (e *ReplyError) IsUsage() bool {
	return len(e.Lines) == 1 && strings.HasPrefix(e.Lines[0], wire.ReplyUsagePrefix)
}

// failed reports whether a reply signals failure. The server never sends a
// listed name that reads as a failure line, so this holds for ls too.
func failed(lines []string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, wire.ReplyErrorPrefix) {
			return true
		}
	}
	return len(lines) == 1 && (lines[0] == wire.ReplyInvalidCommand || strings.HasPrefix(lines[0], wire.ReplyUsagePrefix))
}
