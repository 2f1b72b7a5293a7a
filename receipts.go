package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fintrack/models"
	"fintrack/pkg/ocr"
	"fintrack/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxUploadBytes = 10 << 20

// readImage reads the multipart "file" field and decodes it.
func readImage(c *gin.Context) (name string, data []byte, img image.Image, err error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: file missing", store.ErrInvalid)
	}
	if fh.Size > maxUploadBytes {
		return "", nil, nil, fmt.Errorf("%w: file too large (max %d MB)", store.ErrInvalid, maxUploadBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, nil, err
	}
	defer f.Close()
	data, err = io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return "", nil, nil, err
	}
	img, err = ocr.DecodeImage(data)
	if err != nil {
		return "", nil, nil, err
	}
	return cleanFileName(fh.Filename), data, img, nil
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return uuid.NewString()
	}
	return name
}

// scan runs multi-pass extraction when OCR_MULTIPASS is on and a single
// pass otherwise.
func (s *server) scan(ctx context.Context, img image.Image, multi bool) (ocr.Result, error) {
	if multi {
		return s.scanner.ExtractMultiPass(ctx, img), nil
	}
	return s.scanner.ExtractSingle(ctx, img)
}

// uploadReceiptHandler stores a receipt image, scans it and suggests an
// unconfirmed expense from what was read.
func (s *server) uploadReceiptHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetUint("user_id")
	name, data, img, err := readImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	dir := filepath.Join(s.cfg.UploadBase, strconv.FormatUint(uint64(userID), 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(c, err)
		return
	}
	hash, err := store.HashContent(bytes.NewReader(data))
	if err != nil {
		s.fail(c, err)
		return
	}
	receipt, created, err := s.store.CreateReceipt(ctx, &models.Receipt{
		UserID:      userID,
		FileName:    name,
		StorePath:   filepath.ToSlash(filepath.Join(dir, name)),
		ContentType: http.DetectContentType(data),
		ContentHash: hash,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if !created && receipt.Status == models.ReceiptProcessed {
		c.JSON(http.StatusOK, gin.H{"receipt": receipt})
		return
	}
	if err := os.WriteFile(filepath.Join(dir, receipt.FileName), data, 0o644); err != nil {
		s.fail(c, err)
		return
	}

	res, scanErr := s.scan(ctx, img, s.cfg.OCRMultiPass)
	if _, err := s.store.RecordScan(ctx, receipt, res, scanErr, s.cfg.OCRMinConfidence); err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("receipt scanned",
		zap.String("receipt", receipt.PublicID),
		zap.String("status", receipt.Status),
		zap.Float64("confidence", res.Confidence))
	c.JSON(http.StatusCreated, gin.H{"receipt": receipt, "scan": res})
}

// scanPreviewHandler extracts without storing anything. mode=single or
// mode=multi overrides OCR_MULTIPASS.
func (s *server) scanPreviewHandler(c *gin.Context) {
	_, _, img, err := readImage(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	multi := s.cfg.OCRMultiPass
	switch c.Query("mode") {
	case "single":
		multi = false
	case "multi":
		multi = true
	}
	res, err := s.scan(c.Request.Context(), img, multi)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) listReceiptsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := s.store.ListReceipts(c.Request.Context(), scope(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) getReceiptHandler(c *gin.Context) {
	r, err := s.store.ReceiptByPublicID(c.Request.Context(), scope(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *server) listTransactionsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	f := store.TransactionFilter{
		Month:           c.Query("month"),
		UnconfirmedOnly: c.Query("unconfirmed") == "true",
		Limit:           limit,
	}
	items, err := s.store.ListTransactions(c.Request.Context(), scope(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func parseMoney(raw string) (decimal.Decimal, error) {
	v, err := ocr.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q", store.ErrInvalid, raw)
	}
	return v, nil
}

// parseDay accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDay(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: date %q", store.ErrInvalid, raw)
}

type transactionRequest struct {
	Kind     string `json:"kind"`
	Amount   string `json:"amount" binding:"required"`
	Category string `json:"category"`
	Merchant string `json:"merchant"`
	Note     string `json:"note"`
	Date     string `json:"date"`
}

func (s *server) createTransactionHandler(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	in := store.NewTransaction{Kind: req.Kind, Amount: amount, Category: req.Category, Merchant: req.Merchant, Note: req.Note}
	if req.Date != "" {
		if in.Date, err = parseDay(req.Date); err != nil {
			s.fail(c, err)
			return
		}
	}
	t, err := s.store.CreateTransaction(c.Request.Context(), c.GetUint("user_id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

type confirmRequest struct {
	Amount   *string `json:"amount"`
	Category *string `json:"category"`
	Merchant *string `json:"merchant"`
	Date     *string `json:"date"`
}

// confirmTransactionHandler applies a reviewer's corrections to a
// suggested transaction and marks it confirmed. An empty body confirms
// as is.
func (s *server) confirmTransactionHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req confirmRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	patch := store.TransactionPatch{Category: req.Category, Merchant: req.Merchant}
	if req.Amount != nil {
		v, err := parseMoney(*req.Amount)
		if err != nil {
			s.fail(c, err)
			return
		}
		patch.Amount = &v
	}
	if req.Date != nil {
		d, err := parseDay(*req.Date)
		if err != nil {
			s.fail(c, err)
			return
		}
		patch.Date = &d
	}
	t, err := s.store.ConfirmTransaction(c.Request.Context(), scope(c), uint(id), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) summaryHandler(c *gin.Context) {
	rows, err := s.store.MonthlySummary(c.Request.Context(), scope(c), c.Query("confirmed") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	if rows == nil {
		rows = []store.MonthTotal{}
	}
	c.JSON(http.StatusOK, rows)
}
