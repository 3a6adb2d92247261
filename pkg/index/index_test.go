package index

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// newTree builds a small tree and a refreshed Indexer over it.
func newTree(t *testing.T, backend Backend) (*Indexer, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "Notes.TXT", "n")
	writeFile(t, root, "docs/readme.md", "readme")
	writeFile(t, root, "docs/report.pdf", "pdf")
	writeFile(t, root, "docs/deep/readme.md", "deep")
	writeFile(t, root, "music/song.mp3", "mp3")
	writeFile(t, root, "mydocs/other.txt", "o")

	ix, err := New(root, backend, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Refresh(context.Background()))
	return ix, root
}

func TestRefreshIndexesRegularFiles(t *testing.T) {
	ix, _ := newTree(t, nil)

	var paths []string
	for _, e := range ix.Snapshot().Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{
		"Notes.TXT",
		"docs/deep/readme.md",
		"docs/readme.md",
		"docs/report.pdf",
		"music/song.mp3",
		"mydocs/other.txt",
	}, paths)
	assert.Equal(t, 6, ix.Len())
	assert.False(t, ix.Snapshot().BuiltAt().IsZero())
}

func TestRefreshSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	ix, root := newTree(t, nil)
	outside := t.TempDir()
	writeFile(t, outside, "secret.txt", "s")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")))

	require.NoError(t, ix.Refresh(context.Background()))
	_, found := ix.Lookup("secret.txt")
	assert.False(t, found)
	_, found = ix.Lookup("link.txt")
	assert.False(t, found)
}

func TestRefreshSkipsUnservableNames(t *testing.T) {
	ix, root := newTree(t, nil)
	writeFile(t, root, "docs/.filebox-upload-123", "partial")
	if runtime.GOOS != "windows" {
		writeFile(t, root, "two\nlines.txt", "x")
		writeFile(t, root, "bad\rdir/inside.txt", "x")
	}

	require.NoError(t, ix.Refresh(context.Background()))
	assert.Equal(t, 6, ix.Len())
	_, found := ix.Lookup(".filebox-upload-123")
	assert.False(t, found)
	_, found = ix.Lookup("inside.txt")
	assert.False(t, found)
}

func TestRefreshMissingRootKeepsSnapshot(t *testing.T) {
	ix, root := newTree(t, nil)
	require.NoError(t, os.RemoveAll(root))

	assert.Error(t, ix.Refresh(context.Background()))
	assert.Equal(t, 6, ix.Len())
}

func TestRefreshHonoursContext(t *testing.T) {
	ix, _ := newTree(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ix.Refresh(ctx), context.Canceled)
}

func TestLookup(t *testing.T) {
	ix, _ := newTree(t, nil)

	tests := []struct {
		name     string
		query    string
		location string
		found    bool
	}{
		{"RootFile", "notes.txt", "/", true},
		{"CaseInsensitive", "NOTES.txt", "/", true},
		{"FirstMatchInPathOrder", "readme.md", "/docs/deep", true},
		{"WithDirectory", "docs/readme.md", "/docs", true},
		{"LeadingSlash", "/music/song.mp3", "/music", true},
		{"Extension", ".pdf", "/docs", true},
		{"PartialNameIsNotAMatch", "eadme.md", "", false},
		{"Missing", "missing.txt", "", false},
		{"Empty", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, found := ix.Lookup(tt.query)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.location, loc)
		})
	}
}

func TestList(t *testing.T) {
	ix, _ := newTree(t, nil)

	names := func(entries []Entry) []string {
		out := []string{}
		for _, e := range entries {
			out = append(out, e.Path)
		}
		return out
	}

	assert.Len(t, ix.List(""), 6)
	assert.Len(t, ix.List("/"), 6)
	assert.Equal(t, []string{"docs/deep/readme.md", "docs/readme.md", "docs/report.pdf"}, names(ix.List("docs")))
	assert.Equal(t, []string{"docs/deep/readme.md", "docs/readme.md", "docs/report.pdf"}, names(ix.List("/DOCS/")))
	assert.Equal(t, []string{"docs/deep/readme.md"}, names(ix.List("deep")))
	assert.Equal(t, []string{"docs/deep/readme.md"}, names(ix.List("docs/deep")))
	assert.Empty(t, ix.List("doc"))
	assert.Empty(t, ix.List("nothing"))
}

func TestUpsert(t *testing.T) {
	ix, root := newTree(t, nil)
	before := ix.Snapshot()

	writeFile(t, root, "docs/new.bin", "12345")
	require.NoError(t, ix.UpsertFile(context.Background(), filepath.Join(root, "docs", "new.bin")))

	loc, found := ix.Lookup("new.bin")
	require.True(t, found)
	assert.Equal(t, "/docs", loc)
	assert.Equal(t, 7, ix.Len())
	assert.Equal(t, 6, before.Len(), "earlier snapshots are immutable")

	// Replacing keeps the count.
	require.NoError(t, ix.Upsert(context.Background(), Entry{Path: "docs/new.bin", Size: 99}))
	assert.Equal(t, 7, ix.Len())
	e, ok := ix.Snapshot().Lookup("new.bin")
	require.True(t, ok)
	assert.Equal(t, int64(99), e.Size)
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	ix, _ := newTree(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, ix.Refresh(ctx))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, found := ix.Lookup("song.mp3")
				assert.True(t, found)
			}
		}()
	}
	wg.Wait()
}

type recordingMetrics struct {
	mu        sync.Mutex
	refreshes int
	entries   int
}

func (m *recordingMetrics) ObserveRefresh(time.Duration, error) {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
}

func (m *recordingMetrics) SetEntries(n int) {
	m.mu.Lock()
	m.entries = n
	m.mu.Unlock()
}

func TestMetrics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	m := &recordingMetrics{}

	ix, err := New(root, nil, m)
	require.NoError(t, err)
	require.NoError(t, ix.Refresh(context.Background()))

	assert.Equal(t, 1, m.refreshes)
	assert.Equal(t, 1, m.entries)
}

func TestEntryLocation(t *testing.T) {
	assert.Equal(t, "/", Entry{Path: "a.txt"}.Location())
	assert.Equal(t, "/docs/deep", Entry{Path: "docs/deep/x"}.Location())
	assert.Equal(t, "x", Entry{Path: "docs/deep/x"}.Name())
}

func TestParsePolicy(t *testing.T) {
	for _, p := range Policies {
		got, err := ParsePolicy(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestRunIntervalPicksUpNewFiles(t *testing.T) {
	ix, root := newTree(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ix.Start(ctx, PolicyInterval, 20*time.Millisecond))
	writeFile(t, root, "later.txt", "l")

	require.Eventually(t, func() bool {
		_, found := ix.Lookup("later.txt")
		return found
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherPicksUpNewFiles(t *testing.T) {
	ix, root := newTree(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWatcher(ix, 20*time.Millisecond)
	require.NoError(t, err)
	go w.Run(ctx)

	writeFile(t, root, "music/new.mp3", "x")
	require.Eventually(t, func() bool {
		_, found := ix.Lookup("new.mp3")
		return found
	}, 3*time.Second, 20*time.Millisecond)

	// Directories created after start are watched too.
	require.NoError(t, os.Mkdir(filepath.Join(root, "fresh"), 0o755))
	require.Eventually(t, func() bool {
		writeFile(t, root, "fresh/inner.txt", "i")
		_, found := ix.Lookup("inner.txt")
		return found
	}, 3*time.Second, 50*time.Millisecond)
}
