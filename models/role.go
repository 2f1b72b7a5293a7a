package models

import "time"

// Role names seeded at startup.
const (
	RoleAdmin = "administrator"
	RoleUser  = "user"
)

// Role is a master row referenced by users.
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// DefaultRoles are created when missing.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleAdmin, Description: "full access"},
		{Name: RoleUser, Description: "regular user"},
	}
}
