// Package store persists users, receipts and transactions with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
	ErrForbidden  = errors.New("forbidden")
	ErrInvalid    = errors.New("invalid input")
)

// AdminUsername is the account EnsureAdmin creates.
const AdminUsername = "admin"

// Store wraps a gorm handle. Methods are safe for concurrent use.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// Open connects to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty database DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// New returns a Store over db. A nil logger is replaced with a no-op one.
func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log, now: time.Now}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates the schema. Roles go first so the users
// foreign key can be applied; each model is migrated on its own so one
// failure (for example a permission problem) does not block the rest.
func (s *Store) Migrate() error {
	var errs []error
	for _, m := range []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"transactions", &models.Transaction{}},
		{"receipts", &models.Receipt{}},
		{"refresh_tokens", &models.RefreshToken{}},
	} {
		if err := s.db.AutoMigrate(m.model); err != nil {
			s.log.Warn("migration warning", zap.String("table", m.table), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", m.table, err))
		}
	}
	return errors.Join(errs...)
}

// SeedRoles creates the default roles that do not exist yet.
func (s *Store) SeedRoles(ctx context.Context) error {
	for _, r := range models.DefaultRoles() {
		role := r
		if err := s.db.WithContext(ctx).Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}
	return nil
}

// EnsureAdmin creates the administrator account with the given password
// hash when it is missing.
func (s *Store) EnsureAdmin(ctx context.Context, hash []byte) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", AdminUsername).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	role, err := s.role(ctx, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	admin := models.User{Username: AdminUsername, HashedPassword: hash, RoleID: &role.ID}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return false, err
	}
	s.log.Info("seeded admin user", zap.String("username", AdminUsername))
	return true, nil
}

func (s *Store) role(ctx context.Context, name string) (models.Role, error) {
	role := models.Role{Name: name}
	for _, r := range models.DefaultRoles() {
		if r.Name == name {
			role = r
		}
	}
	if err := s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&role).Error; err != nil {
		return models.Role{}, fmt.Errorf("ensure role %s: %w", name, err)
	}
	return role, nil
}

// Scope limits queries to one user's rows unless Admin is set.
type Scope struct {
	UserID uint
	Admin  bool
}

func (sc Scope) apply(q *gorm.DB) *gorm.DB {
	if sc.Admin {
		return q
	}
	return q.Where("user_id = ?", sc.UserID)
}

func (sc Scope) owns(userID uint) bool { return sc.Admin || sc.UserID == userID }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
