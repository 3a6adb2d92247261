package filebox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/index"
	"github.com/marmos91/filebox/pkg/sandbox"
)

const (
	testUser = "alice"
	testPass = "wonderland"
)

type testServer struct {
	adapter *Adapter
	root    string
	index   *index.Indexer
	addr    string
}

// startServer serves this tree:
//
//	root/
//	  hello.txt      "hello world"
//	  docs/
//	    readme.md
//	    deep/
//	      notes.txt
func startServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	return startServerWithAuth(t, mutate, adapter.AuthenticatorFunc(func(_ context.Context, u, p string) (bool, error) {
		return u == testUser && p == testPass, nil
	}))
}

func startServerWithAuth(t *testing.T, mutate func(*Config), authn adapter.Authenticator) *testServer {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "readme.md"), []byte("# readme"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "deep", "notes.txt"), []byte("n"), 0o644))

	sb, err := sandbox.New(root)
	require.NoError(t, err)
	ix, err := index.New(sb.Root(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Refresh(context.Background()))

	cfg := Config{BindAddress: "127.0.0.1", ShutdownTimeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(cfg, Deps{
		Sandbox: sb,
		Index:   ix,
		Auth:    authn,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	addr := a.GetListenerAddr()
	require.NotEmpty(t, addr)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return &testServer{adapter: a, root: sb.Root(), index: ix, addr: addr}
}

// peer speaks the wire protocol directly.
type peer struct {
	t    *testing.T
	conn net.Conn
	f    *wire.Framer
}

func dialPeer(t *testing.T, addr string) *peer {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn, f: wire.NewFramer(conn, wire.Options{})}
}

func login(t *testing.T, addr string) *peer {
	t.Helper()
	p := dialPeer(t, addr)
	p.send(testUser, testPass)
	assert.Equal(t, wire.AuthSuccess, p.line())
	return p
}

func (p *peer) send(lines ...string) {
	p.t.Helper()
	require.NoError(p.t, p.f.WriteLines(lines...))
	require.NoError(p.t, p.f.Flush())
}

func (p *peer) line() string {
	p.t.Helper()
	l, err := p.f.ReadLine()
	require.NoError(p.t, err)
	return l
}

// reply sends cmd and returns the lines before END.
func (p *peer) reply(cmd string) []string {
	p.t.Helper()
	p.send(cmd)
	return p.untilEnd()
}

func (p *peer) untilEnd() []string {
	p.t.Helper()
	var out []string
	for {
		l := p.line()
		if l == string(wire.MarkerEnd) {
			return out
		}
		out = append(out, l)
	}
}

func (p *peer) upload(name string, data []byte) []string {
	p.t.Helper()
	p.send("upload " + name)
	require.Equal(p.t, string(wire.MarkerBeginUpload), p.line())
	_, err := p.f.SendPayload(bytes.NewReader(data), int64(len(data)))
	require.NoError(p.t, err)
	p.send(string(wire.MarkerEndUpload))
	return p.untilEnd()
}

func (p *peer) download(name string) ([]byte, []string) {
	p.t.Helper()
	p.send("download " + name)
	first := p.line()
	if first != string(wire.MarkerBeginTransfer) {
		return nil, append([]string{first}, p.untilEnd()...)
	}
	var buf bytes.Buffer
	_, err := p.f.ReceivePayload(&buf)
	require.NoError(p.t, err)
	require.NoError(p.t, p.f.ExpectMarker(wire.MarkerEndTransfer))
	assert.Empty(p.t, p.untilEnd())
	return buf.Bytes(), nil
}

func TestAuthentication(t *testing.T) {
	srv := startServer(t, nil)

	t.Run("Success", func(t *testing.T) {
		p := login(t, srv.addr)
		assert.Equal(t, []string{"/"}, p.reply("pwd"))
	})

	t.Run("FailureClosesSession", func(t *testing.T) {
		p := dialPeer(t, srv.addr)
		p.send(testUser, "wrong")
		assert.Equal(t, wire.AuthFailure, p.line())
		_, err := p.f.ReadLine()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("BackendErrorIsFailure", func(t *testing.T) {
		srv := startServerWithAuth(t, nil, adapter.AuthenticatorFunc(func(context.Context, string, string) (bool, error) {
			return true, errors.New("database down")
		}))
		p := dialPeer(t, srv.addr)
		p.send(testUser, testPass)
		assert.Equal(t, wire.AuthFailure, p.line())
	})

	t.Run("AuthTimeout", func(t *testing.T) {
		srv := startServer(t, func(c *Config) { c.AuthTimeout = 100 * time.Millisecond })
		p := dialPeer(t, srv.addr)
		_, err := p.f.ReadLine()
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestLsCdPwd(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	assert.Equal(t, []string{"docs", "hello.txt"}, p.reply("ls"))

	assert.Equal(t, []string{"Changed directory to /docs"}, p.reply("cd docs"))
	assert.Equal(t, []string{"/docs"}, p.reply("pwd"))
	assert.Equal(t, []string{"deep", "readme.md"}, p.reply("LS"))

	assert.Equal(t, []string{"Changed directory to /docs/deep"}, p.reply("cd deep"))
	assert.Equal(t, []string{"Changed directory to /"}, p.reply("cd /"))
	assert.Equal(t, []string{"Changed directory to /docs/deep"}, p.reply("cd /docs/deep"))
	assert.Equal(t, []string{"Changed directory to /docs"}, p.reply("cd .."))
}

func TestUploadReservedNamesKeepsFraming(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	for _, name := range []string{"END", "BEGIN_FILE_TRANSFER", "BEGIN_FILE_UPLOAD", "END_FILE_UPLOAD", "Error: x", "Invalid command"} {
		t.Run(name, func(t *testing.T) {
			lines := p.reply("upload " + name)
			require.Len(t, lines, 1)
			assert.Equal(t, "Error: /"+name+": name is reserved", lines[0])

			_, err := os.Stat(filepath.Join(srv.root, name))
			assert.True(t, os.IsNotExist(err))
		})
	}

	assert.Equal(t, []string{"docs", "hello.txt"}, p.reply("ls"))
	assert.Equal(t, []string{"/"}, p.reply("pwd"))
}

func TestLsSkipsUnlistableNames(t *testing.T) {
	srv := startServer(t, nil)
	for _, name := range []string{"END", "END_FILE_TRANSFER", "Error: looks like a failure", sandbox.TempPrefix + "42"} {
		require.NoError(t, os.WriteFile(filepath.Join(srv.root, name), []byte("x"), 0o644))
	}
	p := login(t, srv.addr)

	assert.Equal(t, []string{"docs", "hello.txt"}, p.reply("ls"))
	assert.Equal(t, []string{"/"}, p.reply("pwd"))
}

func TestInProgressUploadIsNotServed(t *testing.T) {
	srv := startServer(t, nil)
	partial := sandbox.TempPrefix + "7"
	require.NoError(t, os.WriteFile(filepath.Join(srv.root, partial), []byte("half"), 0o644))
	p := login(t, srv.addr)

	got, lines := p.download(partial)
	assert.Nil(t, got)
	assert.Equal(t, []string{"Error: /" + partial + ": name is reserved"}, lines)

	lines = p.reply("upload " + partial)
	assert.Equal(t, []string{"Error: /" + partial + ": name is reserved"}, lines)
	assert.Equal(t, []string{"/"}, p.reply("pwd"))
}

func TestCdFailureLeavesDirectoryUnchanged(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)
	p.reply("cd docs")

	for _, arg := range []string{"missing", "..\\..", "../..", "../../../etc", "readme.md"} {
		t.Run(arg, func(t *testing.T) {
			lines := p.reply("cd " + arg)
			require.Len(t, lines, 1)
			assert.True(t, strings.HasPrefix(lines[0], wire.ReplyErrorPrefix), lines[0])
			assert.Equal(t, []string{"/docs"}, p.reply("pwd"))
		})
	}

	lines := p.reply("cd ../..")
	assert.Equal(t, []string{"Error: access denied: path is outside the shared directory"}, lines)
}

func TestUsageAndInvalidCommands(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	assert.Equal(t, []string{"Usage: cd <directory>"}, p.reply("cd"))
	assert.Equal(t, []string{"Usage: download <file>"}, p.reply("download   "))
	assert.Equal(t, []string{"Usage: upload <file>"}, p.reply("upload"))
	assert.Equal(t, []string{"Usage: search <file>"}, p.reply("search"))
	assert.Equal(t, []string{wire.ReplyInvalidCommand}, p.reply("rm -rf /"))
	assert.Equal(t, []string{wire.ReplyInvalidCommand}, p.reply("lsx"))
	assert.Equal(t, []string{wire.ReplyInvalidCommand}, p.reply(""))

	// The session still works after every rejection.
	assert.Equal(t, []string{"/"}, p.reply("pwd"))
}

func TestHelp(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	lines := p.reply("help")
	assert.Equal(t, wire.HelpLines(), lines)
	assert.Equal(t, "Available commands:", lines[0])
}

func TestDownload(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	data, errLines := p.download("hello.txt")
	assert.Nil(t, errLines)
	assert.Equal(t, "hello world", string(data))

	p.reply("cd docs")
	data, _ = p.download("/hello.txt")
	assert.Equal(t, "hello world", string(data))

	t.Run("MissingFileNoBeginMarker", func(t *testing.T) {
		_, lines := p.download("missing.txt")
		require.Len(t, lines, 1)
		assert.True(t, strings.HasPrefix(lines[0], "Error: "), lines[0])
		assert.Contains(t, lines[0], "no such file")
	})

	t.Run("DirectoryRejected", func(t *testing.T) {
		_, lines := p.download("deep")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "not a regular file")
	})

	t.Run("OutsideRootRejected", func(t *testing.T) {
		_, lines := p.download("../../secret.txt")
		assert.Equal(t, []string{"Error: access denied: path is outside the shared directory"}, lines)
	})
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	sizes := []int{0, 1, 4095, 4096, 4097, 70000, 1 << 20}
	for _, size := range sizes {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			data := make([]byte, size)
			for i := range data {
				data[i] = byte(i * 7)
			}
			name := "blob-" + strconv.Itoa(size) + ".bin"

			lines := p.upload(name, data)
			assert.Equal(t, []string{wire.ReplyUploadComplete + name}, lines)

			got, errLines := p.download(name)
			require.Nil(t, errLines)
			assert.True(t, bytes.Equal(data, got), "content mismatch for %d bytes", size)
		})
	}
}

func TestUploadPayloadContainingMarkers(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	data := []byte("line\nEND\nEND_FILE_UPLOAD\nBEGIN_FILE_TRANSFER\n\x00\xff")
	assert.Equal(t, []string{"File upload complete: tricky.bin"}, p.upload("tricky.bin", data))

	got, _ := p.download("tricky.bin")
	assert.Equal(t, data, got)
	assert.Equal(t, []string{"/"}, p.reply("pwd"))
}

func TestUploadIntoSubdirectoryUpdatesIndex(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	p.reply("cd docs")
	assert.Equal(t, []string{"File upload complete: fresh.txt"}, p.upload("fresh.txt", []byte("new")))

	content, err := os.ReadFile(filepath.Join(srv.root, "docs", "fresh.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))

	assert.Equal(t, []string{"File found in /docs"}, p.reply("search fresh.txt"))

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Join(srv.root, "docs"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".filebox-upload-"), e.Name())
	}
}

func TestUploadRejections(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	t.Run("OutsideRootNoBeginMarker", func(t *testing.T) {
		lines := p.reply("upload ../escape.txt")
		assert.Equal(t, []string{"Error: access denied: path is outside the shared directory"}, lines)
		_, err := os.Stat(filepath.Join(filepath.Dir(srv.root), "escape.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("MissingParent", func(t *testing.T) {
		lines := p.reply("upload nodir/file.txt")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "no such file")
	})

	t.Run("OverDirectory", func(t *testing.T) {
		lines := p.reply("upload docs")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "not a regular file")
	})

	t.Run("MissingEndMarker", func(t *testing.T) {
		p.send("upload partial.txt")
		require.Equal(t, string(wire.MarkerBeginUpload), p.line())
		_, err := p.f.SendPayload(strings.NewReader("abc"), 3)
		require.NoError(t, err)
		p.send("NOT_THE_MARKER")
		assert.Equal(t, []string{"Error: upload ended unexpectedly (missing END_FILE_UPLOAD)"}, p.untilEnd())

		_, err = os.Stat(filepath.Join(srv.root, "partial.txt"))
		assert.True(t, os.IsNotExist(err), "incomplete uploads are discarded")
	})

	t.Run("InvalidLength", func(t *testing.T) {
		p.send("upload bad.txt")
		require.Equal(t, string(wire.MarkerBeginUpload), p.line())
		p.send("twelve")
		lines := p.untilEnd()
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "invalid upload length")
	})

	assert.Equal(t, []string{"/"}, p.reply("pwd"))
}

func TestUploadTooLargeIsDrained(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.MaxTransferSize = 10 })
	p := login(t, srv.addr)

	p.send("upload big.bin")
	require.Equal(t, string(wire.MarkerBeginUpload), p.line())
	_, err := p.f.SendPayload(bytes.NewReader(make([]byte, 100)), 100)
	require.NoError(t, err)
	p.send(string(wire.MarkerEndUpload))

	lines := p.untilEnd()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "exceeds maximum transfer size")

	// Framing survived.
	assert.Equal(t, []string{"/"}, p.reply("pwd"))
	assert.Equal(t, []string{"File upload complete: small.bin"}, p.upload("small.bin", []byte("tiny")))
}

func TestSearchAndShowFiles(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)

	assert.Equal(t, []string{"File found in /"}, p.reply("search hello.txt"))
	assert.Equal(t, []string{"File found in /"}, p.reply("search HELLO.TXT"))
	assert.Equal(t, []string{"File found in /docs/deep"}, p.reply("search notes.txt"))
	assert.Equal(t, []string{"File not found"}, p.reply("search nothing.txt"))

	assert.Equal(t, []string{"File: notes.txt", "File: readme.md"}, p.reply("showfiles docs"))
	assert.Equal(t, []string{"File: notes.txt"}, p.reply("showfiles deep"))
	assert.Len(t, p.reply("showfiles"), 3)
	assert.Empty(t, p.reply("showfiles nowhere"))
}

func TestRefreshOnConnect(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.RefreshOnConnect = true })

	require.NoError(t, os.WriteFile(filepath.Join(srv.root, "late.txt"), []byte("l"), 0o644))
	p := login(t, srv.addr)
	assert.Equal(t, []string{"File found in /"}, p.reply("search late.txt"))
}

func TestEndOfInputEndsSessionSilently(t *testing.T) {
	srv := startServer(t, nil)
	p := login(t, srv.addr)
	p.reply("pwd")

	require.NoError(t, p.conn.(*net.TCPConn).CloseWrite())
	_, err := p.f.ReadLine()
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool {
		return srv.adapter.GetActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentSessionsHaveIndependentDirectories(t *testing.T) {
	srv := startServer(t, nil)
	a := login(t, srv.addr)
	b := login(t, srv.addr)

	a.reply("cd docs")
	b.reply("cd docs/deep")
	assert.Equal(t, []string{"/docs"}, a.reply("pwd"))
	assert.Equal(t, []string{"/docs/deep"}, b.reply("pwd"))
}

func TestSessionPanicDoesNotStopServer(t *testing.T) {
	var calls atomic.Int32
	srv := startServerWithAuth(t, nil, adapter.AuthenticatorFunc(func(_ context.Context, u, p string) (bool, error) {
		if calls.Add(1) == 1 {
			panic("backend bug")
		}
		return u == testUser && p == testPass, nil
	}))

	p := dialPeer(t, srv.addr)
	p.send(testUser, testPass)
	_, err := p.f.ReadLine()
	assert.Error(t, err)

	q := login(t, srv.addr)
	assert.Equal(t, []string{"/"}, q.reply("pwd"))
}

func TestNewValidates(t *testing.T) {
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	ix, err := index.New(sb.Root(), nil, nil)
	require.NoError(t, err)
	authFn := adapter.AuthenticatorFunc(func(context.Context, string, string) (bool, error) { return false, nil })

	_, err = New(Config{Port: -1}, Deps{Sandbox: sb, Auth: authFn, Index: ix})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Auth: authFn, Index: ix})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Sandbox: sb, Index: ix})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Sandbox: sb, Auth: authFn})
	assert.Error(t, err)

	a, err := New(Config{}, Deps{Sandbox: sb, Auth: authFn, Index: ix})
	require.NoError(t, err)
	assert.Equal(t, ProtocolName, a.Protocol())
}
