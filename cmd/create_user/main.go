package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"fintrack/pkg/config"
	"fintrack/pkg/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_user <username> <password>")
		os.Exit(2)
	}
	username := os.Args[1]
	password := os.Args[2]
	if len(password) < 6 {
		log.Fatal("password must be at least 6 characters")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireDB(); err != nil {
		log.Fatal(err)
	}
	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	st := store.New(db, zap.NewNop())
	ctx := context.Background()

	// the user role must exist before the account can reference it
	if err := st.SeedRoles(ctx); err != nil {
		log.Fatalf("seed roles: %v", err)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	user, err := st.CreateUser(ctx, username, hpw)
	if errors.Is(err, store.ErrUserExists) {
		existing, lookupErr := st.UserByUsername(ctx, username)
		if lookupErr == nil {
			fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		}
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d\n", username, user.ID)
}
