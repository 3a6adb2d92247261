package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"localhost:12345", true},
		{"10.0.0.1:21", true},
		{"[::1]:12345", true},
		{"localhost", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := (&Profile{Address: tt.address}).Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidAddress)
			}
		})
	}
}

func TestStoreOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filebox", ConfigFileName)

	s, err := NewStoreAt(path)
	require.NoError(t, err)
	assert.Empty(t, s.Names())

	_, _, err = s.Current()
	assert.ErrorIs(t, err, ErrNoCurrent)

	require.NoError(t, s.Set("home", &Profile{Address: "nas.local:12345", Username: "alice"}))
	require.NoError(t, s.Set("work", &Profile{Address: "files.example.com:2121"}))

	name, p, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "home", name, "first profile becomes current")
	assert.Equal(t, "alice", p.Username)

	require.NoError(t, s.Use("work"))
	assert.Equal(t, []string{"home", "work"}, s.Names())

	assert.ErrorIs(t, s.Use("nope"), ErrProfileNotFound)
	assert.ErrorIs(t, s.Set("bad", &Profile{Address: "no-port"}), ErrInvalidAddress)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Touch("work", now))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())

	// Reopen from disk.
	s2, err := NewStoreAt(path)
	require.NoError(t, err)
	name, p, err = s2.Current()
	require.NoError(t, err)
	assert.Equal(t, "work", name)
	assert.True(t, p.LastUsed.Equal(now))

	require.NoError(t, s2.Delete("work"))
	_, _, err = s2.Current()
	assert.ErrorIs(t, err, ErrNoCurrent)
	assert.ErrorIs(t, s2.Delete("work"), ErrProfileNotFound)
}

func TestNewStoreUsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	s, err := NewStore()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigDir, ConfigFileName), s.Path())
}

func TestNewStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("profiles: [oops"), 0o600))

	_, err := NewStoreAt(path)
	assert.Error(t, err)
}
