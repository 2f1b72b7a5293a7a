package models

import "time"

// Transaction kinds.
const (
	KindExpense = "expense"
	KindIncome  = "income"
)

// Transaction is a money movement belonging to a user. Scanned receipts
// create unconfirmed expenses that a person reviews and confirms.
//
// Amount is the exact decimal text; AmountMinor holds the same value in
// hundredths for sums.
type Transaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UserID      uint      `gorm:"index;not null" json:"-"`
	Kind        string    `gorm:"size:16;not null;default:expense" json:"kind"`
	Amount      string    `gorm:"size:32;not null" json:"amount"`
	AmountMinor int64     `gorm:"not null" json:"amount_minor"`
	Category    string    `gorm:"size:64" json:"category,omitempty"`
	Merchant    string    `gorm:"size:255" json:"merchant,omitempty"`
	Note        string    `gorm:"size:512" json:"note,omitempty"`
	Date        time.Time `gorm:"index;not null" json:"date"`
	Confidence  float64   `json:"confidence"`
	Confirmed   bool      `gorm:"default:false;index" json:"confirmed"`
}
