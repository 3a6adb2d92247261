// Package models defines the persisted control-plane records used by the
// database authentication backend.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
	}
}
