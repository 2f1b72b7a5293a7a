package store

import (
	"context"
	"strings"
	"time"

	"fintrack/models"

	"gorm.io/gorm"
)

// CreateUser inserts a regular user. It fails with ErrUserExists when the
// name is taken, including when a concurrent insert wins the race.
func (s *Store) CreateUser(ctx context.Context, username string, hash []byte) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalid
	}
	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrUserExists
	}
	role, err := s.role(ctx, models.RoleUser)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, HashedPassword: hash, RoleID: &role.ID, Role: role}
	if err := s.db.WithContext(ctx).Omit("Role").Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return &user, nil
}

// UserByUsername loads a user with its role.
func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Role").Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByID loads a user with its role.
func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role").First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// SetPassword replaces a user's password hash and revokes their refresh
// tokens.
func (s *Store) SetPassword(ctx context.Context, username string, hash []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&user).Update("hashed_password", hash).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", user.ID, false).
			Update("revoked", true).Error
	})
}

// SaveRefreshToken stores the hash of a newly issued refresh token.
func (s *Store) SaveRefreshToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	rt := models.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return s.db.WithContext(ctx).Create(&rt).Error
}

// RefreshTokenByHash finds a stored refresh token.
func (s *Store) RefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rt).Error; err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token unusable.
func (s *Store) RevokeRefreshToken(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("id = ?", id).Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken revokes old and stores the replacement atomically.
func (s *Store) RotateRefreshToken(ctx context.Context, old *models.RefreshToken, newHash string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).Where("id = ? AND revoked = ?", old.ID, false).Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&models.RefreshToken{UserID: old.UserID, TokenHash: newHash, ExpiresAt: expiresAt}).Error
	})
}
