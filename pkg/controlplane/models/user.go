package models

import (
	"fmt"
	"regexp"
	"time"
)

// usernamePattern restricts names to what fits on one protocol line and in a
// config map key.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// User is an account allowed to open filebox sessions.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:64" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	DisplayName  string     `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// GetDisplayName returns the display name, or username if display name is not set.
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Validate checks the fields a store requires before insert.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if !ValidUsername(u.Username) {
		return fmt.Errorf("invalid username %q: use letters, digits, '.', '_' or '-'", u.Username)
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("password hash is required")
	}
	return nil
}

// ValidUsername reports whether name is acceptable as a login name.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}
