package ocr

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	strongReceiptWords = []string{"receipt", "invoice", "total", "tax", "payment", "cash", "card"}
	weakReceiptWords   = []string{"date", "time", "thank you", "customer", "change", "subtotal", "amount"}
	businessWords      = []string{"store", "ltd", "pvt", "inc", "llc", "plc", "company", "co.", "supermarket", "restaurant", "pharmacy", "hotel", "mart"}

	dateTimeShapeRe = regexp.MustCompile(`\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4}|\b\d{1,2}:\d{2}\b`)

	hundredThousand = decimal.NewFromInt(100_000)
	ten             = decimal.NewFromInt(10)
	fifty           = decimal.NewFromInt(50)
)

// Validator recalibrates a result's confidence from how plausible its amount
// and text look. It never changes the extracted fields.
type Validator struct{}

// Validate returns r with Confidence = min(r.Confidence × multipliers, 1), floored at 0.
func (Validator) Validate(r Result) Result {
	orig := clamp01(r.Confidence)
	m := 1.0
	if r.Amount != nil {
		m *= amountMultiplier(*r.Amount, orig)
	}
	m *= contentMultiplier(r.RawText)
	r.Confidence = clamp01(orig * m)
	return r
}

func amountMultiplier(a decimal.Decimal, conf float64) float64 {
	m := 1.0
	switch {
	case a.GreaterThan(MaxAmount):
		m *= 0.3
	case a.GreaterThan(hundredThousand):
		m *= 0.6
	case a.LessThan(decimal.NewFromInt(1)):
		m *= 0.4
	case a.LessThan(ten) && conf > 0.8:
		m *= 0.6
	}
	if a.GreaterThan(fifty) && a.Equal(a.Truncate(0)) {
		m *= 1.1
	}
	return m
}

func contentMultiplier(text string) float64 {
	low := strings.ToLower(text)
	m := 1.0
	switch strong := countPresent(low, strongReceiptWords); {
	case strong >= 3:
		m *= 1.3
	case strong == 2:
		m *= 1.2
	case strong == 1:
		m *= 1.1
	}
	if countPresent(low, weakReceiptWords) >= 2 {
		m *= 1.1
	}
	if countPresent(low, businessWords) >= 1 {
		m *= 1.05
	}
	switch words := meaningfulWords(low); {
	case words < 3:
		m *= 0.7
	case words < 6:
		m *= 0.85
	}
	if dateTimeShapeRe.MatchString(low) {
		m *= 1.05
	}
	return m
}

func countPresent(low string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(low, w) {
			n++
		}
	}
	return n
}

// meaningfulWords counts whitespace separated tokens longer than two characters.
func meaningfulWords(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		if len([]rune(f)) > 2 {
			n++
		}
	}
	return n
}
