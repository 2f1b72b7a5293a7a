package ocr

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount normalizes a matched substring into a decimal amount. The last
// '.' or ',' is the decimal separator when one or two digits follow it;
// every other separator is a thousands separator (1,250.00 and 1.250,00
// both give 1250).
func ParseAmount(found string) (decimal.Decimal, error) {
	s := strings.TrimSpace(found)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty")
	}
	intPart, fracPart := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		tail := onlyDigits(s[i+1:])
		if n := len(tail); (n == 1 || n == 2) && len(strings.TrimSpace(s[i+1:])) == n {
			intPart, fracPart = s[:i], tail
		}
	}
	digits := onlyDigits(intPart)
	if digits == "" {
		return decimal.Zero, fmt.Errorf("no digits extracted from %q", found)
	}
	num := digits
	if fracPart != "" {
		num += "." + fracPart
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", num, err)
	}
	return d, nil
}

// inRange reports whether d is a reportable total: (0, MaxAmount].
func inRange(d decimal.Decimal) bool {
	return d.IsPositive() && d.LessThanOrEqual(MaxAmount)
}
