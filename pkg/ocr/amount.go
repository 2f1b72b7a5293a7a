package ocr

import (
	"regexp"
	"strings"
)

const (
	// DefaultCandidateCap bounds how many candidates one call accumulates.
	// Lines are scanned in priority order, so labelled totals fill it first.
	DefaultCandidateCap = 64

	// serial numbers, account ids and the like
	serialDigits = 7
)

const (
	numberExpr   = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d{1,2})?)`
	decimalExpr  = `(\d{1,3}(?:,\d{3})+\.\d{2}|\d{1,3}(?:\.\d{3})+,\d{2}|\d+[.,]\d{2})`
	currencyExpr = `(?:rs\.?|lkr|inr|usd|us\$|eur|gbp|idr|rp\.?|\$|€|£|₹)`
	suffixExpr   = `(?:rs|lkr|inr|usd|eur|gbp|idr|€|£|₹)`
	// keeps "rs" inside words such as "hours" from reading as a currency
	notLetter = `(?:^|[^a-z])`
)

// amountPattern is one way a total shows up in text. Weight says how
// strongly a match implies it is the receipt total.
type amountPattern struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

var amountPatterns = []amountPattern{
	{"grand_total", regexp.MustCompile(`(?i)grand\s*total\s*[:=-]?\s*(?:` + currencyExpr + `\s*)?` + numberExpr), 1.0},
	{"total", regexp.MustCompile(`(?i)` + notLetter + `total\s*[:=-]?\s*(?:` + currencyExpr + `\s*)?` + numberExpr), 1.0},
	{"amount_due", regexp.MustCompile(`(?i)(?:amount|balance|total)\s*(?:due|payable)\s*[:=-]?\s*(?:` + currencyExpr + `\s*)?` + numberExpr), 1.0},
	{"net_sub", regexp.MustCompile(`(?i)(?:net|sub)\s*-?\s*(?:total|amount)\s*[:=-]?\s*(?:` + currencyExpr + `\s*)?` + numberExpr), 0.9},
	{"currency_decimal", regexp.MustCompile(`(?i)` + notLetter + currencyExpr + `\s*` + decimalExpr), 0.95},
	{"currency", regexp.MustCompile(`(?i)` + notLetter + currencyExpr + `\s*` + numberExpr), 0.8},
	{"currency_suffix", regexp.MustCompile(`(?i)` + numberExpr + `\s*` + suffixExpr + `(?:[^a-z]|$)`), 0.75},
	{"grouped_decimal", regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})+\.\d{2})\b`), 0.7},
	{"plain_decimal", regexp.MustCompile(`\b(\d+\.\d{2})\b`), 0.6},
	{"generic", regexp.MustCompile(`\b(\d{4,})\b`), 0.65},
}

var (
	totalKeywords    = []string{"total", "amount", "sum", "pay", "due", "balance"}
	currencyKeywords = []string{"rs", "lkr", "inr", "usd", "eur", "gbp", "idr", "rp", "$", "€", "£", "₹"}
)

// AmountExtractor finds candidate totals in recognized text.
type AmountExtractor struct {
	Detector Detector
	Cap      int
}

// NewAmountExtractor returns an extractor using d to skip phone and date lines.
func NewAmountExtractor(d Detector) *AmountExtractor {
	if d == nil {
		d = RegexDetector{}
	}
	return &AmountExtractor{Detector: d, Cap: DefaultCandidateCap}
}

// Extract returns every candidate found in text. Each candidate's confidence
// is recognizerConfidence times the weight of the pattern that found it.
// Values outside (0, MaxAmount] are dropped.
func (e *AmountExtractor) Extract(text string, recognizerConfidence float64) []AmountCandidate {
	limit := e.Cap
	if limit <= 0 {
		limit = DefaultCandidateCap
	}
	base := clamp01(recognizerConfidence)
	var out []AmountCandidate
	for _, line := range e.prioritize(nonEmptyLines(text)) {
		if e.skipLine(line) {
			continue
		}
		for _, p := range amountPatterns {
			for _, m := range p.re.FindAllStringSubmatchIndex(line, -1) {
				if p.name == "total" && qualifiedTotal(line, m[0], m[1]) {
					continue
				}
				v, err := ParseAmount(line[m[2]:m[3]])
				if err != nil || !inRange(v) {
					continue
				}
				out = append(out, AmountCandidate{Value: v, Confidence: clamp01(base * p.weight)})
				if len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// prioritize orders lines: total keywords first, then currency markers,
// then the rest, keeping the original order within each group.
func (e *AmountExtractor) prioritize(lines []string) []string {
	var keyword, currency, rest []string
	for _, l := range lines {
		low := strings.ToLower(l)
		switch {
		case containsAny(low, totalKeywords...):
			keyword = append(keyword, l)
		case hasCurrencyMarker(low):
			currency = append(currency, l)
		default:
			rest = append(rest, l)
		}
	}
	return append(append(keyword, currency...), rest...)
}

func (e *AmountExtractor) skipLine(line string) bool {
	if len(e.Detector.Detect(line)) > 0 {
		return true
	}
	return len(onlyDigits(line)) >= serialDigits && !strings.ContainsAny(line, ".,")
}

// qualifiedTotal reports whether the "total" inside line[start:end] is
// really "sub total" or "net total", which have their own pattern.
func qualifiedTotal(line string, start, end int) bool {
	i := strings.Index(strings.ToLower(line[start:end]), "total")
	if i < 0 {
		return false
	}
	before := strings.TrimRight(strings.ToLower(line[:start+i]), " -")
	return strings.HasSuffix(before, "sub") || strings.HasSuffix(before, "net")
}

func hasCurrencyMarker(low string) bool {
	for _, c := range currencyKeywords {
		i := strings.Index(low, c)
		if i < 0 {
			continue
		}
		if len(c) > 1 && c[0] >= 'a' && c[0] <= 'z' && i > 0 && isLetter(low[i-1]) {
			continue
		}
		return true
	}
	return false
}

func isLetter(b byte) bool { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' }
