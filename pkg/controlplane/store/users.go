package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/filebox/pkg/controlplane/models"
)

// ============================================
// USER OPERATIONS
// ============================================

func (s *GORMStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound)
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return listAll[models.User](s.db.Order("username"), ctx)
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", fmt.Errorf("invalid user: %w", err)
	}
	user.CreatedAt = time.Now()
	return createWithID(s.db, ctx, user, func(u *models.User, id string) { u.ID = id }, user.ID, models.ErrDuplicateUser)
}

func (s *GORMStore) SetEnabled(ctx context.Context, username string, enabled bool) error {
	return updateByUsername(s, ctx, username, map[string]any{"enabled": enabled})
}

func (s *GORMStore) DeleteUser(ctx context.Context, username string) error {
	return deleteByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound)
}

func (s *GORMStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	return updateByUsername(s, ctx, username, map[string]any{"password_hash": passwordHash})
}

func (s *GORMStore) UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error {
	return updateByUsername(s, ctx, username, map[string]any{"last_login": timestamp})
}

func updateByUsername(s *GORMStore, ctx context.Context, username string, fields map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Updates(fields)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Enabled {
		return nil, models.ErrUserDisabled
	}

	if !models.VerifyPassword(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}
