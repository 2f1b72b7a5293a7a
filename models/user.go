package models

import (
	"time"
)

// User owns receipts and transactions.
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time    `gorm:"index"`
	Username       string        `gorm:"size:255;not null;unique"`
	HashedPassword []byte        `gorm:"not null" json:"-"`
	RoleID         *uint         `gorm:"index"`
	Role           Role          `gorm:"foreignKey:RoleID;references:ID" json:"-"`
	Receipts       []Receipt     `json:"-"`
	Transactions   []Transaction `json:"-"`
}

// IsAdmin reports whether the preloaded role is the administrator role.
func (u User) IsAdmin() bool { return u.Role.Name == RoleAdmin }
