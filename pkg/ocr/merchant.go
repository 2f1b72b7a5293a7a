package ocr

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	merchantScanLines = 5
	merchantMinLen    = 4
	merchantMaxLen    = 49
)

var (
	merchantBoilerplate = []string{
		"receipt", "invoice", "tax invoice", "bill", "cash", "welcome", "tel", "phone",
		"fax", "email", "www", "http", "vat", "reg no", "date", "time", "cashier",
		"order", "table", "thank you",
	}
	phoneRunRe = regexp.MustCompile(`\d[\d\s()+-]{7,}\d`)
)

// MerchantExtractor picks the store name from the top of the receipt.
type MerchantExtractor struct{}

// Extract returns the first of the top five non-empty lines that is not
// boilerplate, has no phone-like digit run, is mostly letters and is
// between 4 and 49 characters long.
func (MerchantExtractor) Extract(text string) *string {
	lines := nonEmptyLines(text)
	if len(lines) > merchantScanLines {
		lines = lines[:merchantScanLines]
	}
	for _, l := range lines {
		low := strings.ToLower(l)
		if isBoilerplate(low) || phoneRunRe.MatchString(l) {
			continue
		}
		n := utf8.RuneCountInString(l)
		if n < merchantMinLen || n > merchantMaxLen {
			continue
		}
		if letterRatio(l) > 0.5 {
			return strPtr(l)
		}
	}
	return nil
}

func isBoilerplate(low string) bool {
	for _, w := range merchantBoilerplate {
		if containsWord(low, w) {
			return true
		}
	}
	return false
}
