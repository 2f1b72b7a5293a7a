package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"fintrack/pkg/config"
	"fintrack/pkg/store"
	"fintrack/process/sanitize"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		dryRun = flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
		yes    = flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
		reseed = flag.Bool("reseed", false, "After truncation, reseed roles and the admin user (needs ADMIN_PASSWORD)")
		tables = flag.String("tables", strings.Join(sanitize.DefaultTables, ","), "Comma-separated list of tables to truncate")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireDB(); err != nil {
		log.Fatal("DB_DSN must be set to run db_sanitize")
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	plan := sanitize.Resolve(db, *tables)
	for _, name := range plan.Invalid {
		log.Printf("warning: skipping invalid table name '%s'", name)
	}
	for _, name := range plan.Missing {
		log.Printf("info: table %s not found, skipping", name)
	}
	if len(plan.Tables) == 0 {
		log.Println("no requested tables present in the database; nothing to do")
		return
	}
	fmt.Println("Tables considered for truncation:")
	for _, t := range plan.Tables {
		fmt.Printf(" - %s\n", t)
	}
	if *dryRun {
		fmt.Println("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := sanitize.Truncate(ctx, db, plan.Tables, logger); err != nil {
		log.Fatalf("truncate failed: %v", err)
	}
	log.Println("Truncate completed.")

	if !*reseed {
		return
	}
	var hash []byte
	if cfg.AdminPassword != "" {
		if hash, err = bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost); err != nil {
			log.Fatalf("hash admin password: %v", err)
		}
	} else {
		log.Println("ADMIN_PASSWORD not set; reseeding roles only")
	}
	if err := sanitize.Reseed(ctx, store.New(db, logger.Named("store")), hash); err != nil {
		log.Fatalf("reseed failed: %v", err)
	}
	log.Println("Reseed completed.")
}
