package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
)

// Download fetches remote into dst and returns the byte count. A server
// refusal is a *ReplyError. If dst fails the payload is still drained and
// the session stays usable; the error wraps ErrLocalFile.
func (c *Client) Download(remote string, dst io.Writer) (int64, error) {
	if err := c.send(c.command(wire.VerbDownload, remote)); err != nil {
		return 0, err
	}

	first, err := c.framer.ReadLine()
	if err != nil {
		return 0, fmt.Errorf("read reply: %w", err)
	}
	if first != string(wire.MarkerBeginTransfer) {
		rest, err := c.drain()
		if err != nil {
			return 0, err
		}
		return 0, &ReplyError{Lines: append([]string{first}, rest...)}
	}

	n, recvErr := c.framer.ReceivePayload(dst)
	var sinkErr *wire.SinkError
	switch {
	case recvErr == nil:
	case errors.As(recvErr, &sinkErr):
	case errors.Is(recvErr, wire.ErrPayloadTooLarge):
	default:
		// The stream position is unknown; the connection is unusable.
		_ = c.conn.Close()
		return n, fmt.Errorf("receive payload: %w", recvErr)
	}

	if err := c.framer.ExpectMarker(wire.MarkerEndTransfer); err != nil {
		_ = c.conn.Close()
		return n, err
	}
	if _, err := c.drain(); err != nil {
		return n, err
	}

	if sinkErr != nil {
		return n, fmt.Errorf("%w: %w", ErrLocalFile, sinkErr.Err)
	}
	if recvErr != nil {
		return 0, recvErr
	}
	return n, nil
}

// DownloadFile downloads remote to localPath. The file is written next to
// localPath under a temporary name and renamed when complete.
func (c *Client) DownloadFile(remote, localPath string) (int64, error) {
	dir := filepath.Dir(localPath)
	tmp, err := os.CreateTemp(dir, ".filebox-download-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := c.Download(remote, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", ErrLocalFile, cerr)
	}
	if err != nil {
		return n, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return n, fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return n, fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	return n, nil
}

// Upload sends size bytes from src as remote and returns the server's
// confirmation line. src must yield at least size bytes; a short source
// leaves the stream unframed and the connection is closed.
func (c *Client) Upload(remote string, src io.Reader, size int64) (string, error) {
	if strings.TrimSpace(remote) == "" {
		return "", ErrInvalidArgument
	}
	if err := c.send(c.command(wire.VerbUpload, remote)); err != nil {
		return "", err
	}

	first, err := c.framer.ReadLine()
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if first != string(wire.MarkerBeginUpload) {
		rest, err := c.drain()
		if err != nil {
			return "", err
		}
		return "", &ReplyError{Lines: append([]string{first}, rest...)}
	}

	if _, err := c.framer.SendPayload(src, size); err != nil {
		_ = c.conn.Close()
		return "", fmt.Errorf("send payload: %w", err)
	}
	if err := c.framer.WriteMarker(wire.MarkerEndUpload); err != nil {
		return "", err
	}
	if err := c.framer.Flush(); err != nil {
		return "", err
	}

	lines, err := c.drain()
	if err != nil {
		return "", err
	}
	if failed(lines) || len(lines) == 0 {
		return "", &ReplyError{Lines: lines}
	}
	return lines[len(lines)-1], nil
}

// UploadFile uploads localPath as remote, or under its base name when
// remote is empty. The local file is checked before anything is sent.
func (c *Client) UploadFile(localPath, remote string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrLocalFile, localPath)
	}
	if remote == "" {
		remote = filepath.Base(localPath)
	}
	return c.Upload(remote, f, info.Size())
}
