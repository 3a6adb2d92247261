package config

import (
	"fmt"

	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/auth"
	"github.com/marmos91/filebox/pkg/controlplane/store"
)

// StaticHashes returns the static users as username to bcrypt hash.
func (c *AuthConfig) StaticHashes() map[string]string {
	hashes := make(map[string]string, len(c.Users))
	for name, u := range c.Users {
		hashes[name] = u.PasswordHash
	}
	return hashes
}

// CreateAuthenticator builds the authenticator selected by cfg.Backend.
// users must be non-nil for the database and chain backends.
func CreateAuthenticator(cfg AuthConfig, users store.Store) (adapter.Authenticator, error) {
	switch cfg.Backend {
	case AuthBackendStatic, "":
		return auth.NewStatic(cfg.StaticHashes())
	case AuthBackendDatabase:
		if users == nil {
			return nil, fmt.Errorf("database auth backend requires a user store")
		}
		return auth.NewStore(users), nil
	case AuthBackendChain:
		if users == nil {
			return nil, fmt.Errorf("chain auth backend requires a user store")
		}
		static, err := auth.NewStatic(cfg.StaticHashes())
		if err != nil {
			return nil, err
		}
		return auth.Chain{static, auth.NewStore(users)}, nil
	default:
		return nil, fmt.Errorf("unknown auth backend: %q", cfg.Backend)
	}
}

// UsesDatabase reports whether the backend needs the user database.
func (c *AuthConfig) UsesDatabase() bool {
	return c.Backend == AuthBackendDatabase || c.Backend == AuthBackendChain
}
