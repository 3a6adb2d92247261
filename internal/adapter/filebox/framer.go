// Package filebox implements the filebox wire format: newline-terminated
// control lines interleaved with length-prefixed binary payloads on a single
// byte stream.
//
// A payload is always announced by a decimal length line and is read with an
// exact byte count, so its content may contain anything, including text that
// looks like a marker. Control lines and payload bytes are read through the
// same buffered reader; mixing in a second reader on the raw connection would
// lose bytes already buffered.
package filebox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/marmos91/filebox/pkg/bufpool"
)

// DefaultMaxLineLength bounds a single control line.
const DefaultMaxLineLength = 64 << 10

var (
	// ErrUnexpectedMarker is returned when a different line was read where a
	// specific marker was required.
	ErrUnexpectedMarker = errors.New("unexpected marker")

	// ErrInvalidLength is returned when a length line is not a non-negative
	// decimal integer.
	ErrInvalidLength = errors.New("invalid payload length")

	// ErrPayloadTooLarge is returned when a declared length exceeds the
	// configured maximum. The payload has been discarded from the stream.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum transfer size")

	// ErrLineTooLong is returned when a control line exceeds the line limit.
	ErrLineTooLong = errors.New("control line too long")

	// ErrShortPayload is returned when the sender's source ended before the
	// announced length was written. The stream is no longer framed.
	ErrShortPayload = errors.New("payload shorter than announced length")
)

// SinkError wraps a failure of the local destination during ReceivePayload.
// The remaining payload bytes were drained, so the stream is still in sync.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "write payload: " + e.Err.Error() }

func (e *SinkError) Unwrap() error { return e.Err }

// Options configures a Framer.
type Options struct {
	// MaxLineLength bounds control lines. Zero means DefaultMaxLineLength.
	MaxLineLength int
	// MaxTransferSize bounds accepted payload lengths. Zero means unlimited.
	MaxTransferSize int64
	// Buffers provides copy buffers. Nil allocates a private pool.
	Buffers *bufpool.Pool
}

// Framer reads and writes filebox frames on one connection. It is not safe
// for concurrent use; a session owns exactly one.
type Framer struct {
	r       *bufio.Reader
	w       *bufio.Writer
	maxLine int
	maxSize int64
	buffers *bufpool.Pool
}

// NewFramer wraps rw. Reads and writes are buffered; call Flush (or End) to
// push pending lines to the peer.
func NewFramer(rw io.ReadWriter, opts Options) *Framer {
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	if opts.Buffers == nil {
		opts.Buffers = bufpool.New(bufpool.DefaultSize)
	}
	return &Framer{
		r:       bufio.NewReader(rw),
		w:       bufio.NewWriter(rw),
		maxLine: opts.MaxLineLength,
		maxSize: opts.MaxTransferSize,
		buffers: opts.Buffers,
	}
}

// ReadLine returns the next control line without its terminator. A trailing
// "\r" is stripped as well. io.EOF is returned only when the stream ends
// cleanly between lines.
func (f *Framer) ReadLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := f.r.ReadSlice('\n')
		if sb.Len()+len(chunk) > f.maxLine+2 {
			return "", ErrLineTooLong
		}
		sb.Write(chunk)

		switch {
		case err == nil:
			line := strings.TrimSuffix(sb.String(), "\n")
			return strings.TrimSuffix(line, "\r"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && sb.Len() > 0:
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

// WriteLine buffers one control line.
func (f *Framer) WriteLine(line string) error {
	if _, err := f.w.WriteString(line); err != nil {
		return err
	}
	return f.w.WriteByte('\n')
}

// WriteLines buffers several control lines.
func (f *Framer) WriteLines(lines ...string) error {
	for _, l := range lines {
		if err := f.WriteLine(l); err != nil {
			return err
		}
	}
	return nil
}

// WriteMarker buffers a marker line.
func (f *Framer) WriteMarker(m Marker) error {
	return f.WriteLine(string(m))
}

// Errorf buffers an "Error: ..." reply line.
func (f *Framer) Errorf(format string, args ...any) error {
	return f.WriteLine(ReplyErrorPrefix + fmt.Sprintf(format, args...))
}

// Flush sends buffered output to the peer.
func (f *Framer) Flush() error {
	return f.w.Flush()
}

// End writes the reply terminator and flushes.
func (f *Framer) End() error {
	if err := f.WriteMarker(MarkerEnd); err != nil {
		return err
	}
	return f.Flush()
}

// ExpectMarker reads one line and requires it to be m.
func (f *Framer) ExpectMarker(m Marker) error {
	line, err := f.ReadLine()
	if err != nil {
		return err
	}
	if line != string(m) {
		return fmt.Errorf("%w: want %s, got %q", ErrUnexpectedMarker, m, truncate(line, 64))
	}
	return nil
}

// ReadLength reads a length line and validates it against the maximum
// transfer size. A too-large length is returned together with
// ErrPayloadTooLarge so the caller can decide whether to discard it.
func (f *Framer) ReadLength() (int64, error) {
	line, err := f.ReadLine()
	if err != nil {
		return 0, err
	}
	return ParseLength(line, f.maxSize)
}

// ParseLength parses a decimal payload length. max <= 0 means unlimited.
func ParseLength(line string, max int64) (int64, error) {
	s := strings.TrimSpace(line)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLength, truncate(line, 64))
	}
	if max > 0 && n > max {
		return n, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, max)
	}
	return n, nil
}

// SendPayload writes the length line followed by exactly size bytes from src.
// If src ends early ErrShortPayload is returned; the peer is then mid-payload
// and the connection must be closed.
func (f *Framer) SendPayload(src io.Reader, size int64) (int64, error) {
	if err := f.WriteLine(strconv.FormatInt(size, 10)); err != nil {
		return 0, err
	}

	buf := f.buffers.Get()
	defer f.buffers.Put(buf)

	n, err := io.CopyBuffer(f.w, io.LimitReader(src, size), *buf)
	if err != nil {
		return n, err
	}
	if n < size {
		return n, fmt.Errorf("%w: sent %d of %d bytes", ErrShortPayload, n, size)
	}
	return n, nil
}

// ReceivePayload reads a length line and then exactly that many bytes into
// dst. On a destination failure the rest of the payload is drained and a
// *SinkError is returned. On ErrPayloadTooLarge the payload is drained
// without touching dst. In both cases the stream remains framed.
func (f *Framer) ReceivePayload(dst io.Writer) (int64, error) {
	size, err := f.ReadLength()
	if errors.Is(err, ErrPayloadTooLarge) {
		if derr := f.Discard(size); derr != nil {
			return 0, derr
		}
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	return f.ReceiveExact(dst, size)
}

// ReceiveExact copies exactly size payload bytes into dst.
func (f *Framer) ReceiveExact(dst io.Writer, size int64) (int64, error) {
	buf := f.buffers.Get()
	defer f.buffers.Put(buf)

	src := &io.LimitedReader{R: f.r, N: size}
	sw := &sinkWriter{w: dst}
	n, err := io.CopyBuffer(sw, src, *buf)
	if sw.err != nil {
		if derr := f.Discard(src.N); derr != nil {
			return n, derr
		}
		return n, &SinkError{Err: sw.err}
	}
	if err == nil && n < size {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Discard skips exactly n payload bytes.
func (f *Framer) Discard(n int64) error {
	got, err := io.CopyN(io.Discard, f.r, n)
	if err == nil && got < n {
		err = io.ErrUnexpectedEOF
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// sinkWriter records destination errors so they can be told apart from
// stream errors after io.CopyBuffer returns.
type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = err
	}
	return n, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
