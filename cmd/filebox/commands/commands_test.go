package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/filebox/pkg/adapter/filebox"
	"github.com/marmos91/filebox/pkg/auth"
	"github.com/marmos91/filebox/pkg/controlplane/models"
	"github.com/marmos91/filebox/pkg/index"
	"github.com/marmos91/filebox/pkg/sandbox"
)

const testPassword = "secret-pass"

// startServer serves a small tree for user "bob" and isolates the profile
// store in a temp XDG_CONFIG_HOME.
func startServer(t *testing.T) (addr, root string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FILEBOX_PASSWORD", testPassword)

	root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "guide.pdf"), []byte("%PDF-1.7"), 0o644))

	hash, err := models.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	authn, err := auth.NewStatic(map[string]string{"bob": hash})
	require.NoError(t, err)

	sb, err := sandbox.New(root)
	require.NoError(t, err)
	ix, err := index.New(sb.Root(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Refresh(context.Background()))

	srv, err := filebox.New(filebox.Config{
		BindAddress:     "127.0.0.1",
		ShutdownTimeout: 2 * time.Second,
	}, filebox.Deps{Sandbox: sb, Auth: authn, Index: ix})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	addr = srv.GetListenerAddr()
	require.NotEmpty(t, addr)
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return addr, sb.Root()
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExec(t *testing.T) {
	addr, _ := startServer(t)

	out, err := run(t, "", "exec", "ls", "--server", addr, "--user", "bob")
	require.NoError(t, err)
	assert.Equal(t, "docs\n", out)

	out, err = run(t, "", "exec", "search", "GUIDE.PDF", "--server", addr, "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "File found in /docs")

	out, err = run(t, "", "exec", "cd", "../..", "--server", addr, "--user", "bob")
	require.Error(t, err)
	assert.Contains(t, out, "access denied")
}

func TestWrongPassword(t *testing.T) {
	addr, _ := startServer(t)
	t.Setenv("FILEBOX_PASSWORD", "not-the-password")

	_, err := run(t, "", "exec", "ls", "--server", addr, "--user", "bob")
	assert.Error(t, err)
}

func TestPutAndGet(t *testing.T) {
	addr, root := startServer(t)
	local := t.TempDir()

	src := filepath.Join(local, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("line one\nEND\nline three\n"), 0o644))

	out, err := run(t, "", "put", src, "docs/notes.txt", "--server", addr, "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "File upload complete")

	stored, err := os.ReadFile(filepath.Join(root, "docs", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nEND\nline three\n", string(stored))

	dst := filepath.Join(local, "copy.txt")
	out, err = run(t, "", "get", "docs/notes.txt", dst, "--server", addr, "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded docs/notes.txt")

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestShell(t *testing.T) {
	addr, _ := startServer(t)
	downloads := t.TempDir()

	script := strings.Join([]string{
		"pwd",
		"cd docs",
		"ls",
		"download guide.pdf",
		"download missing.pdf",
		"upload " + filepath.Join(downloads, "nope.txt"),
		"frobnicate",
		"exit",
	}, "\n") + "\n"

	out, err := run(t, script, "shell", "--server", addr, "--user", "bob",
		"--banner", "Welcome to the archive", "--download-dir", downloads)
	require.NoError(t, err)

	assert.Contains(t, out, "Welcome to the archive")
	assert.Contains(t, out, "Authenticated successfully as bob")
	assert.Contains(t, out, "Changed directory to /docs")
	assert.Contains(t, out, "filebox:/docs> ")
	assert.Contains(t, out, "guide.pdf")
	assert.Contains(t, out, "Downloaded guide.pdf")
	assert.Contains(t, out, "Invalid command")
	assert.Contains(t, out, "local file")

	got, err := os.ReadFile(filepath.Join(downloads, "guide.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(got))
}

func TestShellEndOfInput(t *testing.T) {
	addr, _ := startServer(t)

	out, err := run(t, "pwd\n", "shell", "--server", addr, "--user", "bob", "--banner", "")
	require.NoError(t, err)
	assert.Contains(t, out, "filebox:/> /\n")
}

func TestProfiles(t *testing.T) {
	addr, _ := startServer(t)

	out, err := run(t, "", "profile", "add", "local", addr, "--user", "bob", "--banner", "Local box")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile local saved")

	out, err = run(t, "", "profile", "add", "other", "files.example.com", "--user", "carol", "--banner", "")
	require.NoError(t, err)
	assert.Contains(t, out, "files.example.com:12345")

	out, err = run(t, "", "profile", "list", "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"current": "local"`)
	assert.Contains(t, out, `"address": "files.example.com:12345"`)

	// With no --server or --user the current profile supplies both.
	out, err = run(t, "", "exec", "pwd", "--server", "", "--user", "")
	require.NoError(t, err)
	assert.Equal(t, "/\n", out)

	out, err = run(t, "", "profile", "use", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "Switched to profile other")

	out, err = run(t, "", "profile", "remove", "other", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile other removed")

	_, err = run(t, "", "profile", "use", "other")
	assert.Error(t, err)
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t, "nas.local:12345", withDefaultPort("nas.local"))
	assert.Equal(t, "nas.local:2121", withDefaultPort("nas.local:2121"))
	assert.Equal(t, "[::1]:12345", withDefaultPort("::1"))
}
