// Package client drives a filebox session from the client side: it logs in,
// issues commands, drains replies up to their END terminator and takes part
// in the upload and download framing.
//
// A Client is not safe for concurrent use; the protocol runs one command at
// a time per connection.
package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/pkg/bufpool"
)

// Options configures a Client.
type Options struct {
	// DialTimeout bounds connection setup. 0 means 10s.
	DialTimeout time.Duration

	// BufferSize is the copy buffer size for transfers.
	BufferSize int

	// MaxDownloadSize refuses downloads announcing more bytes. 0 means
	// unlimited.
	MaxDownloadSize int64
}

// Client is one authenticated or not-yet-authenticated session.
type Client struct {
	conn     net.Conn
	framer   *wire.Framer
	loggedIn bool
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	logger.Debug("Connected", "address", conn.RemoteAddr().String())
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts Options) *Client {
	return &Client{
		conn: conn,
		framer: wire.NewFramer(conn, wire.Options{
			MaxTransferSize: opts.MaxDownloadSize,
			Buffers:         bufpool.New(opts.BufferSize),
		}),
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Login sends the credentials. On FAILURE it returns ErrAuthFailed; the
// server closes the connection, so the Client must not be reused.
func (c *Client) Login(username, password string) error {
	if strings.ContainsAny(username, "\r\n") || strings.ContainsAny(password, "\r\n") {
		return ErrInvalidArgument
	}
	if err := c.framer.WriteLines(username, password); err != nil {
		return err
	}
	if err := c.framer.Flush(); err != nil {
		return err
	}

	reply, err := c.framer.ReadLine()
	if err != nil {
		return fmt.Errorf("read login reply: %w", err)
	}
	switch reply {
	case wire.AuthSuccess:
		c.loggedIn = true
		return nil
	case wire.AuthFailure:
		return ErrAuthFailed
	default:
		return fmt.Errorf("unexpected login reply %q", reply)
	}
}

// Exec sends a raw command line and returns the reply lines without END.
// A failed command is returned as both the lines and a *ReplyError.
func (c *Client) Exec(line string) ([]string, error) {
	cmd := wire.ParseCommand(line)
	if cmd.Verb == wire.VerbUpload || cmd.Verb == wire.VerbDownload {
		return nil, ErrTransferCommand
	}
	if err := c.send(line); err != nil {
		return nil, err
	}
	lines, err := c.drain()
	if err != nil {
		return nil, err
	}
	if failed(lines) {
		return lines, &ReplyError{Lines: lines}
	}
	return lines, nil
}

// Ls lists the current directory.
func (c *Client) Ls() ([]string, error) {
	return c.Exec("ls")
}

// Pwd returns the current virtual directory.
func (c *Client) Pwd() (string, error) {
	return c.single("pwd")
}

// Cd changes directory and returns the server's confirmation line.
func (c *Client) Cd(dir string) (string, error) {
	return c.single(c.command(wire.VerbCd, dir))
}

// Help returns the server's command table.
func (c *Client) Help() ([]string, error) {
	return c.Exec("help")
}

// ShowFiles returns the names of indexed files, optionally under
// directories matching filter.
func (c *Client) ShowFiles(filter string) ([]string, error) {
	lines, err := c.Exec(c.command(wire.VerbShowFiles, filter))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, strings.TrimPrefix(l, wire.ReplyFileEntry))
	}
	return names, nil
}

// Search looks name up in the server index and returns the directory that
// holds it.
func (c *Client) Search(name string) (location string, found bool, err error) {
	line, err := c.single(c.command(wire.VerbSearch, name))
	if err != nil {
		return "", false, err
	}
	if loc, ok := strings.CutPrefix(line, wire.ReplyFileFound); ok {
		return loc, true, nil
	}
	return "", false, nil
}

func (c *Client) command(v wire.Verb, arg string) string {
	if arg == "" {
		return v.String()
	}
	return v.String() + " " + arg
}

// single runs a command expected to reply with exactly one line.
func (c *Client) single(line string) (string, error) {
	lines, err := c.Exec(line)
	if err != nil {
		return "", err
	}
	if len(lines) != 1 {
		return "", fmt.Errorf("expected one reply line, got %d", len(lines))
	}
	return lines[0], nil
}

func (c *Client) send(line string) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	if strings.ContainsAny(line, "\r\n") {
		return ErrInvalidArgument
	}
	if err := c.framer.WriteLine(line); err != nil {
		return err
	}
	return c.framer.Flush()
}

// drain reads reply lines up to END.
func (c *Client) drain() ([]string, error) {
	var lines []string
	for {
		line, err := c.framer.ReadLine()
		if err != nil {
			return lines, fmt.Errorf("read reply: %w", err)
		}
		if line == string(wire.MarkerEnd) {
			return lines, nil
		}
		lines = append(lines, line)
	}
}
