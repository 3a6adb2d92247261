package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/filebox/pkg/controlplane/models"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := models.HashPasswordWithCost(password, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestConfig(t *testing.T) {
	t.Run("DefaultsToSQLiteUnderXDG", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", dir)

		cfg := &Config{}
		cfg.ApplyDefaults()
		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
		assert.Equal(t, filepath.Join(dir, "filebox", "users.db"), cfg.SQLite.Path)
	})

	t.Run("PostgresDefaults", func(t *testing.T) {
		cfg := &Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Host: "db", Database: "fb", User: "u"}}
		cfg.ApplyDefaults()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 5432, cfg.Postgres.Port)
		assert.Contains(t, cfg.Postgres.DSN(), "sslmode=disable")
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := New(&Config{Type: "oracle"})
		assert.Error(t, err)

		assert.Error(t, (&Config{Type: DatabaseTypePostgres}).Validate())
	})

	t.Run("CreatesFileDatabase", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "users.db")
		s, err := New(&Config{SQLite: SQLiteConfig{Path: path}})
		require.NoError(t, err)
		defer s.Close()
		assert.FileExists(t, path)
		assert.NoError(t, s.Healthcheck(context.Background()))
	})
}

func TestUserOperations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: mustHash(t, "wonderland")})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	t.Run("DuplicateRejected", func(t *testing.T) {
		_, err := s.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "x"})
		assert.ErrorIs(t, err, models.ErrDuplicateUser)
	})

	t.Run("InvalidRejected", func(t *testing.T) {
		_, err := s.CreateUser(ctx, &models.User{Username: "no spaces", PasswordHash: "x"})
		assert.Error(t, err)
	})

	t.Run("GetAndList", func(t *testing.T) {
		_, err := s.CreateUser(ctx, &models.User{Username: "bob", PasswordHash: mustHash(t, "builder1")})
		require.NoError(t, err)

		u, err := s.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)
		assert.True(t, u.Enabled)

		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)

		_, err = s.GetUser(ctx, "carol")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("ValidateCredentials", func(t *testing.T) {
		u, err := s.ValidateCredentials(ctx, "alice", "wonderland")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)

		_, err = s.ValidateCredentials(ctx, "alice", "nope")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)

		_, err = s.ValidateCredentials(ctx, "ghost", "whatever")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("PasswordChange", func(t *testing.T) {
		require.NoError(t, s.UpdatePassword(ctx, "alice", mustHash(t, "looking-glass")))
		_, err := s.ValidateCredentials(ctx, "alice", "wonderland")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
		_, err = s.ValidateCredentials(ctx, "alice", "looking-glass")
		assert.NoError(t, err)

		assert.ErrorIs(t, s.UpdatePassword(ctx, "ghost", "x"), models.ErrUserNotFound)
	})

	t.Run("DisableBlocksLogin", func(t *testing.T) {
		require.NoError(t, s.SetEnabled(ctx, "bob", false))
		_, err := s.ValidateCredentials(ctx, "bob", "builder1")
		assert.ErrorIs(t, err, models.ErrUserDisabled)

		require.NoError(t, s.SetEnabled(ctx, "bob", true))
		_, err = s.ValidateCredentials(ctx, "bob", "builder1")
		assert.NoError(t, err)
	})

	t.Run("LastLogin", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		require.NoError(t, s.UpdateLastLogin(ctx, "alice", now))
		u, err := s.GetUser(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, u.LastLogin)
		assert.True(t, u.LastLogin.Equal(now))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.DeleteUser(ctx, "bob"))
		assert.ErrorIs(t, s.DeleteUser(ctx, "bob"), models.ErrUserNotFound)
	})
}
