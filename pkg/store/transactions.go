package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/models"
	"fintrack/pkg/ocr"

	"github.com/shopspring/decimal"
)

// maxListed bounds list endpoints.
const maxListed = 200

// NewTransaction is a manually entered transaction.
type NewTransaction struct {
	Kind     string
	Amount   decimal.Decimal
	Category string
	Merchant string
	Note     string
	Date     time.Time
}

// TransactionPatch holds review corrections applied on confirmation. Nil
// fields are left unchanged.
type TransactionPatch struct {
	Amount   *decimal.Decimal
	Category *string
	Merchant *string
	Date     *time.Time
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	// Month is YYYY-MM; empty means all months.
	Month           string
	UnconfirmedOnly bool
	Limit           int
}

// MonthTotal is one row of the monthly summary.
type MonthTotal struct {
	Month string `json:"month"`
	Kind  string `json:"kind"`
	Total string `json:"total"`
	Count int64  `json:"count"`
}

func validAmount(d decimal.Decimal) bool {
	return d.IsPositive() && !d.GreaterThan(ocr.MaxAmount)
}

func minorUnits(d decimal.Decimal) int64 { return d.Shift(2).Round(0).IntPart() }

func validKind(k string) bool { return k == models.KindExpense || k == models.KindIncome }

// CreateTransaction stores a manual entry. Manual entries are confirmed.
func (s *Store) CreateTransaction(ctx context.Context, userID uint, in NewTransaction) (*models.Transaction, error) {
	if in.Kind == "" {
		in.Kind = models.KindExpense
	}
	if !validKind(in.Kind) {
		return nil, fmt.Errorf("%w: kind must be %s or %s", ErrInvalid, models.KindExpense, models.KindIncome)
	}
	if !validAmount(in.Amount) {
		return nil, fmt.Errorf("%w: amount must be in (0, %s]", ErrInvalid, ocr.MaxAmount)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	t := models.Transaction{
		UserID:      userID,
		Kind:        in.Kind,
		Amount:      in.Amount.StringFixed(2),
		AmountMinor: minorUnits(in.Amount),
		Category:    strings.TrimSpace(in.Category),
		Merchant:    strings.TrimSpace(in.Merchant),
		Note:        strings.TrimSpace(in.Note),
		Date:        in.Date,
		Confidence:  1,
		Confirmed:   true,
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns the newest transactions visible to sc.
func (s *Store) ListTransactions(ctx context.Context, sc Scope, f TransactionFilter) ([]models.Transaction, error) {
	q := sc.apply(s.db.WithContext(ctx).Model(&models.Transaction{}))
	if f.Month != "" {
		start, err := time.Parse("2006-01", f.Month)
		if err != nil {
			return nil, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalid)
		}
		q = q.Where("date >= ? AND date < ?", start, start.AddDate(0, 1, 0))
	}
	if f.UnconfirmedOnly {
		q = q.Where("confirmed = ?", false)
	}
	limit := f.Limit
	if limit <= 0 || limit > maxListed {
		limit = maxListed
	}
	var items []models.Transaction
	if err := q.Order("date desc, id desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ConfirmTransaction applies review corrections and marks the transaction
// confirmed. Only the owner or an administrator may confirm.
func (s *Store) ConfirmTransaction(ctx context.Context, sc Scope, id uint, p TransactionPatch) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	if !sc.owns(t.UserID) {
		return nil, ErrForbidden
	}
	if p.Amount != nil {
		if !validAmount(*p.Amount) {
			return nil, fmt.Errorf("%w: amount must be in (0, %s]", ErrInvalid, ocr.MaxAmount)
		}
		t.Amount, t.AmountMinor = p.Amount.StringFixed(2), minorUnits(*p.Amount)
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Merchant != nil {
		t.Merchant = strings.TrimSpace(*p.Merchant)
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	t.Confirmed = true
	if err := s.db.WithContext(ctx).Save(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// MonthlySummary totals transactions per month and kind, oldest month
// first.
func (s *Store) MonthlySummary(ctx context.Context, sc Scope, confirmedOnly bool) ([]MonthTotal, error) {
	month := "to_char(date, 'YYYY-MM')"
	if s.db.Dialector.Name() == "sqlite" {
		month = "strftime('%Y-%m', date)"
	}
	q := sc.apply(s.db.WithContext(ctx).Model(&models.Transaction{}))
	if confirmedOnly {
		q = q.Where("confirmed = ?", true)
	}
	rows, err := q.Select(month + " AS month, kind, CAST(SUM(amount_minor) AS BIGINT) AS total, COUNT(*) AS n").
		Group("month, kind").Order("month, kind").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthTotal
	for rows.Next() {
		var (
			mt    MonthTotal
			minor int64
		)
		if err := rows.Scan(&mt.Month, &mt.Kind, &minor, &mt.Count); err != nil {
			return nil, err
		}
		mt.Total = decimal.New(minor, -2).StringFixed(2)
		out = append(out, mt)
	}
	return out, rows.Err()
}
