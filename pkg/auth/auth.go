// Package auth provides the credential backends that decide whether a
// filebox session may open.
//
// Every backend satisfies adapter.Authenticator:
//
//   - Static: bcrypt hashes declared in the server configuration
//   - Store: accounts persisted in the control-plane database
//   - Chain: tries several backends in order
//
// A rejected login is (false, nil). An error means the backend could not
// decide (database down, corrupt hash) and is logged by the session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/controlplane/models"
	"github.com/marmos91/filebox/pkg/controlplane/store"
)

// dummyHash is compared against when the user is unknown so that unknown
// and known users take comparable time.
var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("filebox-dummy-password"), models.DefaultBcryptCost)
	return h
}()

// Static authenticates against a fixed map of username to bcrypt hash.
type Static struct {
	users map[string][]byte
}

// NewStatic builds a Static authenticator. Every value must be a bcrypt hash.
func NewStatic(hashes map[string]string) (*Static, error) {
	users := make(map[string][]byte, len(hashes))
	for name, hash := range hashes {
		if !models.ValidUsername(name) {
			return nil, fmt.Errorf("invalid username %q", name)
		}
		if !models.IsBcryptHash(hash) {
			return nil, fmt.Errorf("user %q: password_hash is not a bcrypt hash", name)
		}
		users[name] = []byte(hash)
	}
	return &Static{users: users}, nil
}

// Authenticate implements adapter.Authenticator.
func (s *Static) Authenticate(_ context.Context, username, password string) (bool, error) {
	hash, ok := s.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
}

// Users returns the number of configured users.
func (s *Static) Users() int {
	return len(s.users)
}

// Store authenticates against the control-plane user table and records the
// last successful login.
type Store struct {
	store store.Store
}

// NewStore wraps a control-plane store.
func NewStore(s store.Store) *Store {
	return &Store{store: s}
}

// Authenticate implements adapter.Authenticator.
func (a *Store) Authenticate(ctx context.Context, username, password string) (bool, error) {
	user, err := a.store.ValidateCredentials(ctx, username, password)
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		return false, nil
	case errors.Is(err, models.ErrUserDisabled):
		logger.InfoCtx(ctx, "Login refused for disabled user", logger.KeyUsername, username)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("validate credentials: %w", err)
	}

	if err := a.store.UpdateLastLogin(ctx, user.Username, time.Now()); err != nil {
		logger.WarnCtx(ctx, "Failed to record last login", logger.KeyUsername, username, logger.KeyError, err)
	}
	return true, nil
}

// Chain tries each authenticator in order and accepts the first success.
// A backend error is remembered but does not stop the chain; it is returned
// only if no backend accepted the credentials.
type Chain []adapter.Authenticator

// Authenticate implements adapter.Authenticator.
func (c Chain) Authenticate(ctx context.Context, username, password string) (bool, error) {
	var errs []error
	for _, a := range c {
		ok, err := a.Authenticate(ctx, username, password)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

var (
	_ adapter.Authenticator = (*Static)(nil)
	_ adapter.Authenticator = (*Store)(nil)
	_ adapter.Authenticator = Chain(nil)
)
