package ocr

import (
	"regexp"
	"sort"
)

// SpanKind tags what a detected substring looks like.
type SpanKind int

const (
	SpanPhoneNumber SpanKind = iota + 1
	SpanDate
)

func (k SpanKind) String() string {
	switch k {
	case SpanPhoneNumber:
		return "phone"
	case SpanDate:
		return "date"
	}
	return "unknown"
}

// Span is a detected substring, as byte offsets into the input.
type Span struct {
	Kind       SpanKind
	Start, End int
}

// Detector finds phone numbers and dates in free text. The amount
// extractor uses it to keep those digits out of totals.
type Detector interface {
	Detect(text string) []Span
}

var (
	// digit groups with the separators phone numbers are usually printed with
	phoneRe      = regexp.MustCompile(`(?:\+\d{1,3}[\s-]?)?\(?\d{2,4}\)?[\s-]?\d{3,4}[\s-]?\d{3,4}`)
	phoneLabelRe = regexp.MustCompile(`(?i)\b(?:tel|phone|ph|mob|mobile|fax|hotline)\b\.?\s*:?\s*[+\d][\d\s()-]{6,}`)

	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}[/.-]\d{1,2}[/.-]\d{1,2}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}[\s-]?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?[\s,-]*\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{2,4}\b`),
	}
)

// RegexDetector is the default Detector.
type RegexDetector struct{}

func (RegexDetector) Detect(text string) []Span {
	var spans []Span
	for _, loc := range phoneLabelRe.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{Kind: SpanPhoneNumber, Start: loc[0], End: loc[1]})
	}
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		// nine or more digits with nothing but phone punctuation around them
		if len(onlyDigits(text[loc[0]:loc[1]])) >= 9 && !adjacentDecimal(text, loc[0], loc[1]) {
			spans = append(spans, Span{Kind: SpanPhoneNumber, Start: loc[0], End: loc[1]})
		}
	}
	for _, re := range dateRes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{Kind: SpanDate, Start: loc[0], End: loc[1]})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// adjacentDecimal reports whether the match borders a ',' or '.' followed
// by a digit, which makes it part of a formatted amount.
func adjacentDecimal(text string, start, end int) bool {
	if end+1 < len(text) && (text[end] == '.' || text[end] == ',') && isDigit(text[end+1]) {
		return true
	}
	if start >= 2 && (text[start-1] == '.' || text[start-1] == ',') && isDigit(text[start-2]) {
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
