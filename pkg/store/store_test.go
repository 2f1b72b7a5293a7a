package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fintrack/models"
	"fintrack/pkg/ocr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would get its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	return db
}

func setupTestStore(t *testing.T) *Store {
	logger, _ := zap.NewDevelopment()
	s := New(setupTestDB(t), logger)
	s.now = func() time.Time { return testNow }
	require.NoError(t, s.Migrate())
	require.NoError(t, s.SeedRoles(context.Background()))
	return s
}

func mustUser(t *testing.T, s *Store, name string) *models.User {
	u, err := s.CreateUser(context.Background(), name, []byte("hash"))
	require.NoError(t, err)
	return u
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStore_SeedRolesIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.SeedRoles(context.Background()))

	var count int64
	require.NoError(t, s.DB().Model(&models.Role{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestStore_EnsureAdmin(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureAdmin(ctx, []byte("hash"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureAdmin(ctx, []byte("other"))
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := s.UserByUsername(ctx, AdminUsername)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestStore_CreateUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u := mustUser(t, s, "  alice ")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice", u.Username)

	_, err := s.CreateUser(ctx, "alice", []byte("x"))
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = s.CreateUser(ctx, " ", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalid)

	got, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, got.Role.Name)
	assert.False(t, got.IsAdmin())

	byID, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = s.UserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RefreshTokenRotation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	require.NoError(t, s.SaveRefreshToken(ctx, u.ID, "h1", testNow.Add(time.Hour)))
	old, err := s.RefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, old.Usable(testNow))
	assert.False(t, old.Usable(testNow.Add(2*time.Hour)))

	require.NoError(t, s.RotateRefreshToken(ctx, old, "h2", testNow.Add(time.Hour)))

	old, err = s.RefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, old.Revoked)
	assert.False(t, old.Usable(testNow))

	fresh, err := s.RefreshTokenByHash(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, fresh.UserID)

	// a revoked token cannot be rotated twice
	assert.ErrorIs(t, s.RotateRefreshToken(ctx, old, "h3", testNow.Add(time.Hour)), ErrNotFound)
	_, err = s.RefreshTokenByHash(ctx, "h3")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RevokeRefreshToken(ctx, fresh.ID))
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, 9999), ErrNotFound)
}

func TestStore_SetPasswordRevokesRefreshTokens(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "carol")
	require.NoError(t, s.SaveRefreshToken(ctx, u.ID, "rt", testNow.Add(time.Hour)))

	require.NoError(t, s.SetPassword(ctx, " carol ", []byte("new-hash")))

	got, err := s.UserByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []byte("new-hash"), got.HashedPassword)
	rt, err := s.RefreshTokenByHash(ctx, "rt")
	require.NoError(t, err)
	assert.False(t, rt.Usable(testNow))

	assert.ErrorIs(t, s.SetPassword(ctx, "nobody", []byte("x")), ErrNotFound)
}

func TestStore_CreateReceiptReturnsExistingOnDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	first, created, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "r1.jpg", StorePath: "uploads/1/r1.jpg"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first.PublicID, 36)
	assert.Equal(t, models.ReceiptPending, first.Status)

	again, created, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "r1.jpg"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PublicID, again.PublicID)
}

func TestStore_CreateReceiptByContentHash(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	h1, err := HashContent(strings.NewReader("first image"))
	require.NoError(t, err)
	h2, err := HashContent(strings.NewReader("second image"))
	require.NoError(t, err)
	require.Len(t, h1, 64)

	first, created, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "image.jpg", StorePath: "uploads/1/image.jpg", ContentHash: h1})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "image.jpg", StorePath: "uploads/1/image.jpg", ContentHash: h2})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.PublicID, second.PublicID)
	assert.Equal(t, h2[:12]+"-image.jpg", second.FileName)
	assert.Equal(t, "uploads/1/"+h2[:12]+"-image.jpg", second.StorePath)

	// same content under another name
	again, created, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "copy.jpg", ContentHash: h1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PublicID, again.PublicID)

	// content is only shared within a user
	bob := mustUser(t, s, "bob")
	_, created, err = s.CreateReceipt(ctx, &models.Receipt{UserID: bob.ID, FileName: "image.jpg", ContentHash: h1})
	require.NoError(t, err)
	assert.True(t, created)
}

func scanned(amount string, conf float64) ocr.Result {
	v := dec(amount)
	cat, merch := ocr.CategoryGroceries, "KEELLS SUPER"
	day := time.Date(2026, 9, 25, 0, 0, 0, 0, time.UTC)
	return ocr.Result{
		Amount:            &v,
		RawText:           "KEELLS SUPER\nTOTAL Rs. " + amount,
		SuggestedCategory: &cat,
		Confidence:        conf,
		Merchant:          &merch,
		TransactionDate:   &day,
	}
}

func TestStore_RecordScanSuggestsTransaction(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	r, _, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "r1.jpg"})
	require.NoError(t, err)

	tx, err := s.RecordScan(ctx, r, scanned("1550.00", 0.8), nil, 0.15)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "1550.00", tx.Amount)
	assert.Equal(t, int64(155000), tx.AmountMinor)
	assert.Equal(t, models.KindExpense, tx.Kind)
	assert.Equal(t, ocr.CategoryGroceries, tx.Category)
	assert.Equal(t, "KEELLS SUPER", tx.Merchant)
	assert.Equal(t, 25, tx.Date.Day())
	assert.False(t, tx.Confirmed)

	got, err := s.ReceiptByPublicID(ctx, Scope{UserID: u.ID}, r.PublicID)
	require.NoError(t, err)
	assert.Equal(t, models.ReceiptProcessed, got.Status)
	require.NotNil(t, got.Transaction)
	assert.Equal(t, tx.ID, got.Transaction.ID)
	assert.Contains(t, got.RawText, "TOTAL")

	// rescanning keeps the existing link
	again, err := s.RecordScan(ctx, got, scanned("1600.00", 0.9), nil, 0.15)
	require.NoError(t, err)
	assert.Nil(t, again)
	var count int64
	require.NoError(t, s.DB().Model(&models.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStore_RecordScanFailures(t *testing.T) {
	tests := []struct {
		name    string
		res     ocr.Result
		scanErr error
		reason  string
	}{
		{"scan error", ocr.Result{}, ocr.ErrInvalidImage, "invalid image"},
		{"no amount", ocr.Result{RawText: "hello", Confidence: 0.4}, nil, "no amount detected"},
		{"low confidence", scanned("10.00", 0.1), nil, "low confidence 0.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t)
			ctx := context.Background()
			u := mustUser(t, s, "alice")
			r, _, err := s.CreateReceipt(ctx, &models.Receipt{UserID: u.ID, FileName: "r.jpg"})
			require.NoError(t, err)

			tx, err := s.RecordScan(ctx, r, tt.res, tt.scanErr, 0.15)
			require.NoError(t, err)
			assert.Nil(t, tx)

			got, err := s.ReceiptByFile(ctx, u.ID, "r.jpg")
			require.NoError(t, err)
			assert.Equal(t, models.ReceiptFailed, got.Status)
			assert.Equal(t, tt.reason, got.FailedReason)
			assert.Nil(t, got.TransactionID)
		})
	}
}

func TestStore_ReceiptScoping(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	alice, bob := mustUser(t, s, "alice"), mustUser(t, s, "bob")
	r, _, err := s.CreateReceipt(ctx, &models.Receipt{UserID: alice.ID, FileName: "a.jpg"})
	require.NoError(t, err)
	_, _, err = s.CreateReceipt(ctx, &models.Receipt{UserID: bob.ID, FileName: "b.jpg"})
	require.NoError(t, err)

	_, err = s.ReceiptByPublicID(ctx, Scope{UserID: bob.ID}, r.PublicID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.ReceiptByPublicID(ctx, Scope{UserID: bob.ID, Admin: true}, r.PublicID)
	assert.NoError(t, err)
	_, err = s.ReceiptByPublicID(ctx, Scope{UserID: alice.ID}, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := s.ListReceipts(ctx, Scope{UserID: alice.ID}, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	all, err := s.ListReceipts(ctx, Scope{Admin: true}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_CreateTransactionValidates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	tx, err := s.CreateTransaction(ctx, u.ID, NewTransaction{Amount: dec("12.5"), Merchant: " Cafe "})
	require.NoError(t, err)
	assert.Equal(t, models.KindExpense, tx.Kind)
	assert.Equal(t, "12.50", tx.Amount)
	assert.Equal(t, int64(1250), tx.AmountMinor)
	assert.Equal(t, "Cafe", tx.Merchant)
	assert.True(t, tx.Confirmed)
	assert.True(t, tx.Date.Equal(testNow))

	for _, in := range []NewTransaction{
		{Amount: dec("0")},
		{Amount: dec("-3")},
		{Amount: dec("1000000.01")},
		{Kind: "transfer", Amount: dec("5")},
	} {
		_, err := s.CreateTransaction(ctx, u.ID, in)
		assert.True(t, errors.Is(err, ErrInvalid), "input %+v", in)
	}
}

func TestStore_ListAndConfirmTransactions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	alice, bob := mustUser(t, s, "alice"), mustUser(t, s, "bob")

	r, _, err := s.CreateReceipt(ctx, &models.Receipt{UserID: alice.ID, FileName: "a.jpg"})
	require.NoError(t, err)
	suggested, err := s.RecordScan(ctx, r, scanned("99.90", 0.7), nil, 0.15)
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, alice.ID, NewTransaction{Amount: dec("20"), Date: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	sept, err := s.ListTransactions(ctx, Scope{UserID: alice.ID}, TransactionFilter{Month: "2026-09"})
	require.NoError(t, err)
	require.Len(t, sept, 1)
	assert.Equal(t, suggested.ID, sept[0].ID)

	pending, err := s.ListTransactions(ctx, Scope{UserID: alice.ID}, TransactionFilter{UnconfirmedOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = s.ListTransactions(ctx, Scope{UserID: alice.ID}, TransactionFilter{Month: "09/2026"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.ConfirmTransaction(ctx, Scope{UserID: bob.ID}, suggested.ID, TransactionPatch{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.ConfirmTransaction(ctx, Scope{UserID: alice.ID}, 9999, TransactionPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	amount, cat := dec("89.90"), ocr.CategoryFood
	confirmed, err := s.ConfirmTransaction(ctx, Scope{UserID: alice.ID}, suggested.ID, TransactionPatch{Amount: &amount, Category: &cat})
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)
	assert.Equal(t, "89.90", confirmed.Amount)
	assert.Equal(t, int64(8990), confirmed.AmountMinor)
	assert.Equal(t, ocr.CategoryFood, confirmed.Category)
	assert.Equal(t, "KEELLS SUPER", confirmed.Merchant)

	pending, err = s.ListTransactions(ctx, Scope{UserID: alice.ID}, TransactionFilter{UnconfirmedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_MonthlySummary(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	alice, bob := mustUser(t, s, "alice"), mustUser(t, s, "bob")
	sept := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	oct := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []NewTransaction{
		{Amount: dec("10.25"), Date: sept},
		{Amount: dec("4.75"), Date: sept},
		{Kind: models.KindIncome, Amount: dec("1000"), Date: sept},
		{Amount: dec("3"), Date: oct},
	} {
		_, err := s.CreateTransaction(ctx, alice.ID, in)
		require.NoError(t, err)
	}
	_, err := s.CreateTransaction(ctx, bob.ID, NewTransaction{Amount: dec("500"), Date: sept})
	require.NoError(t, err)

	got, err := s.MonthlySummary(ctx, Scope{UserID: alice.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, []MonthTotal{
		{Month: "2026-09", Kind: models.KindExpense, Total: "15.00", Count: 2},
		{Month: "2026-09", Kind: models.KindIncome, Total: "1000.00", Count: 1},
		{Month: "2026-10", Kind: models.KindExpense, Total: "3.00", Count: 1},
	}, got)

	all, err := s.MonthlySummary(ctx, Scope{Admin: true}, true)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, MonthTotal{Month: "2026-09", Kind: models.KindExpense, Total: "515.00", Count: 3}, all[0])
}
