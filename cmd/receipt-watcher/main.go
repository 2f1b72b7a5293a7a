// receipt-watcher scans receipt images from an inbox directory into a
// user's account. Without -watch it processes what is there and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fintrack/pkg/config"
	"fintrack/pkg/ocr"
	"fintrack/pkg/store"
	"fintrack/process/watcher"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dir := flag.String("dir", cfg.WatchDir, "directory to scan for receipt images")
	processed := flag.String("processed", cfg.ProcessedDir, "directory scanned files are moved to")
	username := flag.String("username", store.AdminUsername, "user the receipts are recorded for")
	dryRun := flag.Bool("dry-run", false, "scan and log only; no database writes, no moves")
	watch := flag.Bool("watch", false, "keep watching the directory for new files")
	workers := flag.Int("workers", cfg.WatchWorkers, "worker pool size (default NumCPU)")
	flag.Parse()

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := watcher.Options{
		Dir:           *dir,
		ProcessedDir:  *processed,
		Workers:       *workers,
		MinConfidence: cfg.OCRMinConfidence,
		DryRun:        *dryRun,
	}
	var st *store.Store
	if !*dryRun {
		if err := cfg.RequireDB(); err != nil {
			logger.Fatal("database required", zap.Error(err))
		}
		db, err := store.Open(cfg.DBDSN)
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		st = store.New(db, logger.Named("store"))
		u, err := st.UserByUsername(ctx, *username)
		if err != nil {
			logger.Fatal("unknown user", zap.String("username", *username), zap.Error(err))
		}
		opts.UserID = u.ID
	}

	engine := ocr.NewEngine(
		ocr.NewTesseractRecognizer(cfg.Languages()...),
		ocr.WithLogger(logger.Named("ocr")),
		ocr.WithMetrics(ocr.NewMetrics(prometheus.NewRegistry())),
	)
	// a nil *store.Store must not end up inside the Store interface
	var w *watcher.Watcher
	if st != nil {
		w = watcher.New(opts, engine, st, logger)
	} else {
		w = watcher.New(opts, engine, nil, logger)
	}

	if err := w.ScanExisting(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("scan inbox", zap.Error(err))
	}
	if *watch {
		if err := w.Watch(ctx); err != nil {
			logger.Fatal("watch inbox", zap.Error(err))
		}
	}
	logger.Info("done")
}
