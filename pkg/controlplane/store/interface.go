// Package store persists filebox user accounts.
//
// Two backends are supported through GORM:
//   - SQLite (single server, default)
//   - PostgreSQL (several servers sharing one user base)
package store

import (
	"context"
	"time"

	"github.com/marmos91/filebox/pkg/controlplane/models"
)

// Store is the user persistence interface consumed by the database
// authenticator and the fileboxd user commands.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// GetUser returns a user by username.
	// Returns models.ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, username string) (*models.User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*models.User, error)

	// CreateUser inserts a user, generating an ID when empty.
	// Returns models.ErrDuplicateUser if the username is taken.
	CreateUser(ctx context.Context, user *models.User) (string, error)

	// SetEnabled enables or disables a user.
	SetEnabled(ctx context.Context, username string, enabled bool) error

	// DeleteUser deletes a user by username.
	DeleteUser(ctx context.Context, username string) error

	// UpdatePassword replaces a user's password hash.
	UpdatePassword(ctx context.Context, username, passwordHash string) error

	// UpdateLastLogin records a successful login.
	UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error

	// ValidateCredentials verifies username/password credentials.
	// Returns models.ErrInvalidCredentials for unknown users and wrong
	// passwords, models.ErrUserDisabled for disabled accounts.
	ValidateCredentials(ctx context.Context, username, password string) (*models.User, error)

	// Healthcheck pings the database.
	Healthcheck(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}
