package ocr

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest total the extractors will ever report.
var MaxAmount = decimal.NewFromInt(1_000_000)

// QualityMetrics are coarse image statistics used to pick preprocessing parameters.
type QualityMetrics struct {
	Brightness      float64
	Contrast        float64
	Sharpness       float64
	HasGoodLighting bool
}

// RecognizedLine is one text region returned by a Recognizer.
type RecognizedLine struct {
	Text       string
	Confidence float64
	Alternates []string
}

// AmountCandidate is a provisional total found in the text.
type AmountCandidate struct {
	Value      decimal.Decimal
	Confidence float64
}

// Result is the structured interpretation of one receipt.
// Optional fields are nil when nothing plausible was found.
type Result struct {
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	RawText           string           `json:"raw_text"`
	SuggestedCategory *string          `json:"suggested_category,omitempty"`
	Confidence        float64          `json:"confidence"`
	Merchant          *string          `json:"merchant,omitempty"`
	TransactionDate   *time.Time       `json:"transaction_date,omitempty"`
}

// emptyResult is what callers get when nothing at all could be read.
func emptyResult() Result {
	return Result{}
}

// joinLines renders recognized lines back into newline separated text.
func joinLines(lines []RecognizedLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// meanConfidence averages the per-line recognizer confidence.
func meanConfidence(lines []RecognizedLine) float64 {
	if len(lines) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range lines {
		sum += clamp01(l.Confidence)
	}
	return sum / float64(len(lines))
}

func clamp01(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func strPtr(s string) *string { return &s }
