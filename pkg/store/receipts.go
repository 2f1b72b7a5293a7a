package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"fintrack/models"
	"fintrack/pkg/ocr"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReason = 255

// CreateReceipt inserts r as pending and assigns its public id. A receipt
// the user already stored with the same content hash is returned with
// created=false. Without a hash the file name decides instead. A different
// image under a taken name is stored as "<hash prefix>-<name>" and StorePath
// follows the new name.
func (s *Store) CreateReceipt(ctx context.Context, r *models.Receipt) (receipt *models.Receipt, created bool, err error) {
	if r.PublicID == "" {
		r.PublicID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.ReceiptPending
	}
	if r.ContentHash != "" {
		if existing, err := s.receiptByHash(ctx, r.UserID, r.ContentHash); err == nil {
			return existing, false, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	err = s.db.WithContext(ctx).Create(r).Error
	if err == nil {
		return r, true, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, false, err
	}
	if r.ContentHash != "" {
		// raced with an upload of the same image
		if existing, err := s.receiptByHash(ctx, r.UserID, r.ContentHash); err == nil {
			return existing, false, nil
		}
		if !strings.HasPrefix(r.FileName, hashPrefix(r.ContentHash)) {
			r.FileName = hashPrefix(r.ContentHash) + r.FileName
			if r.StorePath != "" {
				r.StorePath = path.Join(path.Dir(r.StorePath), r.FileName)
			}
			s.log.Info("receipt name taken, storing under content prefix", zap.String("file", r.FileName))
			return s.CreateReceipt(ctx, r)
		}
	}
	existing, ferr := s.ReceiptByFile(ctx, r.UserID, r.FileName)
	if ferr != nil {
		return nil, false, fmt.Errorf("fetch after conflict: %w", ferr)
	}
	return existing, false, nil
}

func hashPrefix(hash string) string {
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return hash + "-"
}

// HashContent returns the hex sha256 of everything read from rd.
func HashContent(rd io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, rd); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) receiptByHash(ctx context.Context, userID uint, hash string) (*models.Receipt, error) {
	var r models.Receipt
	err := s.db.WithContext(ctx).Preload("Transaction").Where("user_id = ? AND content_hash = ?", userID, hash).Order("id").First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ReceiptByFile finds a user's receipt by stored file name.
func (s *Store) ReceiptByFile(ctx context.Context, userID uint, fileName string) (*models.Receipt, error) {
	var r models.Receipt
	err := s.db.WithContext(ctx).Preload("Transaction").Where("user_id = ? AND file_name = ?", userID, fileName).First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ReceiptByPublicID loads a receipt visible to sc.
func (s *Store) ReceiptByPublicID(ctx context.Context, sc Scope, id string) (*models.Receipt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var r models.Receipt
	if err := s.db.WithContext(ctx).Preload("Transaction").Where("public_id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	if !sc.owns(r.UserID) {
		return nil, ErrForbidden
	}
	return &r, nil
}

// ListReceipts returns the newest receipts visible to sc.
func (s *Store) ListReceipts(ctx context.Context, sc Scope, limit int) ([]models.Receipt, error) {
	if limit <= 0 || limit > maxListed {
		limit = maxListed
	}
	var items []models.Receipt
	err := sc.apply(s.db.WithContext(ctx).Model(&models.Receipt{})).Preload("Transaction").Order("id desc").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// RecordScan stores what the scanner read from r. A result with an amount
// at or above minConfidence yields an unconfirmed expense linked to the
// receipt; anything else marks the receipt failed with the reason. A
// receipt that is already linked keeps its transaction.
func (s *Store) RecordScan(ctx context.Context, r *models.Receipt, res ocr.Result, scanErr error, minConfidence float64) (*models.Transaction, error) {
	r.RawText = res.RawText
	r.Confidence = res.Confidence

	var reason string
	switch {
	case scanErr != nil:
		reason = scanErr.Error()
	case res.Amount == nil:
		reason = ocr.ErrNoAmount.Error()
	case res.Confidence < minConfidence:
		reason = fmt.Sprintf("low confidence %.2f", res.Confidence)
	case !validAmount(*res.Amount):
		reason = "amount out of range"
	}
	if reason != "" {
		r.Status, r.FailedReason = models.ReceiptFailed, truncate(reason, maxReason)
		if err := s.db.WithContext(ctx).Omit("Transaction").Save(r).Error; err != nil {
			return nil, err
		}
		s.log.Debug("receipt scan failed", zap.String("receipt", r.PublicID), zap.String("reason", reason))
		return nil, nil
	}

	var t *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r.Status, r.FailedReason = models.ReceiptProcessed, ""
		if r.TransactionID == nil {
			t = suggestion(r.UserID, res, s.now())
			if err := tx.Create(t).Error; err != nil {
				return err
			}
			r.TransactionID = &t.ID
		}
		return tx.Omit("Transaction").Save(r).Error
	})
	if err != nil {
		return nil, err
	}
	if t != nil {
		r.Transaction = t
		s.log.Info("transaction suggested",
			zap.String("receipt", r.PublicID),
			zap.String("amount", t.Amount),
			zap.Float64("confidence", t.Confidence))
	}
	return t, nil
}

func suggestion(userID uint, res ocr.Result, now time.Time) *models.Transaction {
	t := &models.Transaction{
		UserID:      userID,
		Kind:        models.KindExpense,
		Amount:      res.Amount.StringFixed(2),
		AmountMinor: minorUnits(*res.Amount),
		Date:        now,
		Confidence:  res.Confidence,
	}
	if res.SuggestedCategory != nil {
		t.Category = *res.SuggestedCategory
	}
	if res.Merchant != nil {
		t.Merchant = *res.Merchant
	}
	if res.TransactionDate != nil {
		t.Date = *res.TransactionDate
	}
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
