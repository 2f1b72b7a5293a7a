// Package watcher turns receipt images dropped into an inbox directory into
// scanned receipts and suggested transactions.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/models"
	"fintrack/pkg/ocr"
	"fintrack/pkg/store"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Scanner extracts a result from an image file. *ocr.Engine implements it.
type Scanner interface {
	ExtractFromFile(ctx context.Context, path string) (ocr.Result, error)
}

// Store records receipts and scan outcomes. *store.Store implements it.
type Store interface {
	CreateReceipt(ctx context.Context, r *models.Receipt) (*models.Receipt, bool, error)
	RecordScan(ctx context.Context, r *models.Receipt, res ocr.Result, scanErr error, minConfidence float64) (*models.Transaction, error)
}

// Options configure a Watcher. Zero values get defaults.
type Options struct {
	Dir           string
	ProcessedDir  string
	UserID        uint
	Workers       int
	MinConfidence float64
	// MaxProcessedBytes is the size budget for moved images; larger ones
	// are downscaled.
	MaxProcessedBytes int64
	Debounce          time.Duration
	// DryRun scans and logs without touching the store or moving files.
	DryRun bool
}

// Watcher processes the inbox with a pool of workers.
type Watcher struct {
	opts    Options
	scanner Scanner
	store   Store
	log     *zap.Logger
}

// New returns a Watcher. st may be nil in dry-run mode.
func New(opts Options, sc Scanner, st Store, log *zap.Logger) *Watcher {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxProcessedBytes <= 0 {
		opts.MaxProcessedBytes = 1_000_000
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(opts.Dir, "processed")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{opts: opts, scanner: sc, store: st, log: log}
}

// ScanExisting processes every supported file already in the inbox and
// returns when all are done.
func (w *Watcher) ScanExisting(ctx context.Context) error {
	files, err := ListImageFiles(w.opts.Dir)
	if err != nil {
		return err
	}
	w.log.Info("scanning inbox", zap.String("dir", w.opts.Dir), zap.Int("files", len(files)), zap.Int("workers", w.opts.Workers))
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	w.run(ctx, ch)
	return ctx.Err()
}

// Watch processes files as they appear until ctx is cancelled. A file is
// handed to the pool once it has not changed for the debounce interval.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.opts.Dir); err != nil {
		return err
	}
	w.log.Info("watching inbox", zap.String("dir", w.opts.Dir), zap.Duration("debounce", w.opts.Debounce))

	ch := make(chan string, 256)
	go w.debounce(ctx, fw, ch)
	w.run(ctx, ch)
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (w *Watcher) debounce(ctx context.Context, fw *fsnotify.Watcher, out chan<- string) {
	defer close(out)
	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.opts.Debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != filepath.Clean(w.opts.Dir) || !isSupportedExt(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) < w.opts.Debounce {
					continue
				}
				delete(pending, name)
				select {
				case out <- name:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// run drains files with the worker pool and waits for the workers.
func (w *Watcher) run(ctx context.Context, files <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				w.processFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

// processFile scans one inbox file. Successfully scanned files move to the
// processed directory; failed ones stay so a later run retries them.
func (w *Watcher) processFile(ctx context.Context, name string) {
	path := filepath.Join(w.opts.Dir, name)
	log := w.log.With(zap.String("file", name))

	if w.opts.DryRun {
		res, err := w.scanner.ExtractFromFile(ctx, path)
		log.Info("dry run", zap.Any("amount", res.Amount), zap.Float64("confidence", res.Confidence), zap.Error(err))
		return
	}

	hash, err := hashFile(path)
	if err != nil {
		log.Error("read file", zap.Error(err))
		return
	}
	receipt, created, err := w.store.CreateReceipt(ctx, &models.Receipt{
		UserID:      w.opts.UserID,
		FileName:    name,
		StorePath:   filepath.ToSlash(filepath.Join(w.opts.ProcessedDir, name)),
		ContentType: mimeFromExt(name),
		ContentHash: hash,
	})
	if err != nil {
		log.Error("create receipt", zap.Error(err))
		return
	}
	// the stored name differs when another image already took this one
	dst := filepath.Join(w.opts.ProcessedDir, receipt.FileName)
	if created {
		log.Info("new receipt", zap.String("receipt", receipt.PublicID))
	}
	if receipt.Status == models.ReceiptProcessed {
		log.Debug("already processed")
		w.move(log, path, dst)
		return
	}

	res, scanErr := w.scanner.ExtractFromFile(ctx, path)
	if errors.Is(scanErr, ocr.ErrNoAmount) {
		scanErr = nil
	}
	tx, err := w.store.RecordScan(ctx, receipt, res, scanErr, w.opts.MinConfidence)
	if err != nil {
		log.Error("record scan", zap.Error(err))
		return
	}
	if receipt.Status != models.ReceiptProcessed {
		log.Info("scan failed, left in inbox", zap.String("reason", receipt.FailedReason))
		return
	}
	if tx != nil {
		log.Info("transaction suggested", zap.String("amount", tx.Amount), zap.Float64("confidence", tx.Confidence))
	}
	w.move(log, path, dst)
}

func (w *Watcher) move(log *zap.Logger, src, dst string) {
	if err := moveToProcessed(src, dst, w.opts.MaxProcessedBytes); err != nil {
		log.Warn("failed to move processed file", zap.Error(err))
		return
	}
	log.Debug("moved to processed", zap.String("dst", dst))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return store.HashContent(f)
}

// ListImageFiles returns the supported image files in dir, sorted.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

func isSupportedExt(name string) bool {
	// temp files written by the recognizer
	if strings.Contains(name, ".ocr.") || strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := extMime[strings.ToLower(filepath.Ext(name))]
	return ok
}

func mimeFromExt(name string) string {
	return extMime[strings.ToLower(filepath.Ext(name))]
}
