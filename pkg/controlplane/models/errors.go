package models

import "errors"

// Common errors for user management and authentication.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
	ErrUserDisabled  = errors.New("user account is disabled")

	// ErrInvalidCredentials is returned when a username/password pair does
	// not match. Unknown users map to it too so callers cannot probe names.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
