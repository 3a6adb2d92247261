package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTree builds:
//
//	root/
//	  a.txt
//	  docs/
//	    readme.md
//	    deep/
//	      x.bin
func newTree(t *testing.T) (*Sandbox, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "readme.md"), []byte("r"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "deep", "x.bin"), []byte("x"), 0o644))

	sb, err := New(root)
	require.NoError(t, err)
	return sb, sb.Root()
}

func TestNew(t *testing.T) {
	t.Run("RejectsEmpty", func(t *testing.T) {
		_, err := New("  ")
		assert.Error(t, err)
	})

	t.Run("RejectsMissing", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("RejectsFile", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(f, nil, 0o644))
		_, err := New(f)
		assert.ErrorIs(t, err, ErrNotDirectory)
	})
}

func TestResolve(t *testing.T) {
	sb, root := newTree(t)
	docs := filepath.Join(root, "docs")

	tests := []struct {
		name    string
		cwd     string
		input   string
		req     Require
		want    string
		wantErr error
	}{
		{"EmptyIsCurrent", docs, "", Dir, docs, nil},
		{"DotIsCurrent", docs, ".", Dir, docs, nil},
		{"Child", root, "docs", Dir, docs, nil},
		{"Parent", docs, "..", Dir, root, nil},
		{"NestedFile", root, "docs/deep/x.bin", Regular, filepath.Join(docs, "deep", "x.bin"), nil},
		{"AbsoluteAnchoredAtRoot", docs, "/a.txt", Regular, filepath.Join(root, "a.txt"), nil},
		{"SlashIsRoot", docs, "/", Dir, root, nil},
		{"DotDotWithinTree", docs, "deep/../../a.txt", Regular, filepath.Join(root, "a.txt"), nil},
		{"AbsoluteDotDotClamped", docs, "/../../a.txt", Regular, filepath.Join(root, "a.txt"), nil},
		{"EscapeParent", root, "..", Dir, "", ErrOutsideRoot},
		{"EscapeDeep", docs, "../../../etc/passwd", Any, "", ErrOutsideRoot},
		{"EscapeSibling", root, "../" + filepath.Base(root) + "x", Any, "", ErrOutsideRoot},
		{"HostAbsoluteIsNotHost", root, "/etc/passwd", Regular, "", ErrNotFound},
		{"MissingFile", root, "missing.txt", Regular, "", ErrNotFound},
		{"FileIsNotDir", root, "a.txt", Dir, "", ErrNotDirectory},
		{"DirIsNotRegular", root, "docs", Regular, "", ErrNotRegular},
		{"ExistsAcceptsDir", root, "docs", Exists, docs, nil},
		{"CreatableNewFile", root, "docs/new.txt", Creatable, filepath.Join(docs, "new.txt"), nil},
		{"CreatableOverwrite", root, "a.txt", Creatable, filepath.Join(root, "a.txt"), nil},
		{"CreatableMissingParent", root, "nope/new.txt", Creatable, "", ErrNotFound},
		{"CreatableOverDir", root, "docs", Creatable, "", ErrNotRegular},
		{"NulByte", root, "a\x00b", Any, "", ErrInvalidPath},
		{"LineFeed", root, "END\nls", Any, "", ErrInvalidPath},
		{"CarriageReturn", root, "a.txt\r", Any, "", ErrInvalidPath},
		{"InProgressUpload", root, TempPrefix + "123", Any, "", ErrReserved},
		{"InProgressUploadNested", docs, "../docs/" + TempPrefix + "9", Regular, "", ErrReserved},
		{"CwdOutsideFallsBackToRoot", "/", "a.txt", Regular, filepath.Join(root, "a.txt"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sb.Resolve(tt.cwd, tt.input, tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every input built from ../ segments must resolve inside the root or fail.
func TestResolveNeverEscapes(t *testing.T) {
	sb, root := newTree(t)
	cwds := []string{root, filepath.Join(root, "docs"), filepath.Join(root, "docs", "deep")}
	inputs := []string{
		"..", "../", "../..", "../../..", "./../..", "docs/../..", "docs/deep/../../../",
		"/..", "/../..", "..//..", "....", "..\\..", "../a.txt", "../../docs",
		"deep/../../../../tmp", "%2e%2e/", "docs/./../../x",
	}

	for _, cwd := range cwds {
		for _, in := range inputs {
			got, err := sb.Resolve(cwd, in, Any)
			if err != nil {
				continue
			}
			assert.True(t, sb.Contains(got), "cwd=%q input=%q resolved to %q", cwd, in, got)
		}
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	sb, root := newTree(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
	require.NoError(t, os.Symlink(filepath.Join(root, "docs"), filepath.Join(root, "inside")))

	_, err := sb.Resolve(root, "link/secret", Regular)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = sb.Resolve(root, "link/new.txt", Creatable)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	got, err := sb.Resolve(root, "inside/readme.md", Regular)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "inside", "readme.md"), got)
}

func TestVirtual(t *testing.T) {
	sb, root := newTree(t)

	assert.Equal(t, "/", sb.Virtual(root))
	assert.Equal(t, "/docs", sb.Virtual(filepath.Join(root, "docs")))
	assert.Equal(t, "/docs/deep/x.bin", sb.Virtual(filepath.Join(root, "docs", "deep", "x.bin")))
	assert.Equal(t, "/", sb.Virtual(filepath.Dir(root)))

	assert.Equal(t, "", sb.Rel(root))
	assert.Equal(t, "docs/readme.md", sb.Rel(filepath.Join(root, "docs", "readme.md")))
}

func TestRequireString(t *testing.T) {
	assert.Equal(t, "dir", Dir.String())
	assert.Equal(t, "creatable", Creatable.String())
	assert.Equal(t, "require(42)", Require(42).String())
}

func TestIsTemp(t *testing.T) {
	assert.True(t, IsTemp(TempPrefix+"42"))
	assert.False(t, IsTemp("filebox-upload-42"))
	assert.False(t, IsTemp("notes.txt"))
}
