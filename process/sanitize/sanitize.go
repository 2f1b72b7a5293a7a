// Package sanitize empties application tables and reseeds the master rows.
// It backs the db_sanitize command used to reset development databases.
package sanitize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"fintrack/pkg/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultTables are the application tables, children first.
var DefaultTables = []string{"refresh_tokens", "receipts", "transactions", "users", "roles"}

// letters, digits and underscore, not starting with a digit
var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Plan is the outcome of resolving requested table names.
type Plan struct {
	Tables  []string
	Invalid []string
	Missing []string
}

// Resolve parses a comma separated table list, dropping names that are not
// plain identifiers or do not exist.
func Resolve(db *gorm.DB, list string) Plan {
	var p Plan
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
		case !tableName.MatchString(name):
			p.Invalid = append(p.Invalid, name)
		case !db.Migrator().HasTable(name):
			p.Missing = append(p.Missing, name)
		default:
			p.Tables = append(p.Tables, name)
		}
	}
	return p
}

// Truncate empties tables. Postgres resets identities and cascades; other
// dialects delete row by row inside one transaction.
func Truncate(ctx context.Context, db *gorm.DB, tables []string, log *zap.Logger) error {
	if len(tables) == 0 {
		return nil
	}
	quoted := make([]string, len(tables))
	for i, t := range tables {
		if !tableName.MatchString(t) {
			return fmt.Errorf("invalid table name %q", t)
		}
		quoted[i] = `"` + t + `"`
	}
	if db.Dialector.Name() == "postgres" {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
		log.Info("executing", zap.String("stmt", stmt))
		return db.WithContext(ctx).Exec(stmt).Error
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range quoted {
			log.Info("executing", zap.String("stmt", "DELETE FROM "+q))
			if err := tx.Exec("DELETE FROM " + q).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Reseed restores the roles and, when adminHash is set, the admin account.
func Reseed(ctx context.Context, st *store.Store, adminHash []byte) error {
	if err := st.SeedRoles(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if len(adminHash) == 0 {
		return nil
	}
	if _, err := st.EnsureAdmin(ctx, adminHash); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
