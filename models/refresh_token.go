package models

import "time"

// RefreshToken stores the SHA-256 of a refresh token for rotation and revocation.
type RefreshToken struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"size:128;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Revoked   bool      `gorm:"default:false"`
}

// Usable reports whether the token may still be exchanged at t.
func (rt RefreshToken) Usable(t time.Time) bool {
	return !rt.Revoked && t.Before(rt.ExpiresAt)
}
