package models

import (
	"time"
)

// Receipt scan states.
const (
	ReceiptPending   = "pending"
	ReceiptProcessed = "processed"
	ReceiptFailed    = "failed"
)

// Receipt is a stored receipt image and what the scanner read from it.
// Failed scans keep their row so the image can be reviewed.
type Receipt struct {
	ID            uint         `gorm:"primaryKey" json:"-"`
	PublicID      string       `gorm:"size:36;uniqueIndex;not null" json:"id"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	UserID        uint         `gorm:"index;not null;uniqueIndex:idx_receipt_user_file;index:idx_receipt_user_hash" json:"-"`
	FileName      string       `gorm:"size:255;not null;uniqueIndex:idx_receipt_user_file" json:"file_name"`
	ContentHash   string       `gorm:"size:64;index:idx_receipt_user_hash" json:"-"`
	StorePath     string       `gorm:"column:store_path;size:512" json:"store_path"`
	ContentType   string       `gorm:"size:128" json:"content_type,omitempty"`
	Status        string       `gorm:"size:16;index;not null;default:pending" json:"status"`
	FailedReason  string       `gorm:"size:255" json:"failed_reason,omitempty"`
	RawText       string       `gorm:"type:text" json:"raw_text,omitempty"`
	Confidence    float64      `json:"confidence"`
	TransactionID *uint        `gorm:"index" json:"-"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"transaction,omitempty"`
}
