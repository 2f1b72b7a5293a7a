package main

import (
	"context"
	"os"

	"fintrack/pkg/config"
	"fintrack/pkg/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// openStore connects to Postgres, migrates when DB_AUTO_MIGRATE allows it
// and seeds the master rows.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	if err := cfg.RequireDB(); err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	st := store.New(db, log.Named("store"))
	if err := prepareStore(ctx, st, cfg, log); err != nil {
		return nil, err
	}
	return st, nil
}

// prepareStore migrates (migration failures are logged, not fatal), seeds
// roles and the admin account and creates the upload directory.
func prepareStore(ctx context.Context, st *store.Store, cfg *config.Config, log *zap.Logger) error {
	if cfg.DBAutoMigrate {
		if err := st.Migrate(); err != nil {
			log.Warn("schema migration incomplete", zap.Error(err))
		}
	}
	if err := st.SeedRoles(ctx); err != nil {
		return err
	}
	if cfg.AdminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if _, err := st.EnsureAdmin(ctx, hash); err != nil {
			return err
		}
	}
	ensureUploadBase(cfg.UploadBase, log)
	return nil
}

func ensureUploadBase(base string, log *zap.Logger) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		log.Warn("failed to create upload base dir", zap.String("dir", base), zap.Error(err))
	}
}
