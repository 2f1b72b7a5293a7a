package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/models"
	"fintrack/pkg/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen  = 6
	loginTokenTTL   = 24 * time.Hour
	refreshTokenTTL = 15 * time.Minute
	refreshLifetime = 30 * 24 * time.Hour
)

var errInvalidCredentials = errors.New("invalid credentials")

// Register creates a regular user with a bcrypt password hash.
func (s *server) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username required", store.ErrInvalid)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password too short (min %d)", store.ErrInvalid, minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.store.CreateUser(ctx, username, hash)
	return err
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords fail the same way.
func (s *server) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (s *server) signAccessToken(user *models.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":      user.ID,
		"username": user.Username,
		"role":     user.Role.Name,
		"exp":      s.now().Add(ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *server) parseAccessToken(raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// issueRefreshToken generates a random token and stores only its hash.
func (s *server) issueRefreshToken(ctx context.Context, userID uint) (string, error) {
	raw, hash, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	if err := s.store.SaveRefreshToken(ctx, userID, hash, s.now().Add(refreshLifetime)); err != nil {
		return "", err
	}
	return raw, nil
}

func newRefreshToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
