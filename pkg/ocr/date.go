package ocr

import (
	"regexp"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const monthExpr = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?`

// datePatterns are tried in order against the whole text.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdate\s*[:.]?\s*(\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4})`),
	regexp.MustCompile(`\b(\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4})\b`),
	regexp.MustCompile(`\b(\d{4}[/.-]\d{1,2}[/.-]\d{1,2})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2}(?:st|nd|rd|th)?[\s-]?` + monthExpr + `[\s,-]*\d{2,4})\b`),
	regexp.MustCompile(`(?i)\b(` + monthExpr + `\s*\d{1,2}(?:st|nd|rd|th)?,?\s+\d{2,4})\b`),
}

// dateLayouts are tried in order. Day first wins over month first for
// numeric dates.
var dateLayouts = []string{
	"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
	"02/01/06", "2/1/06", "02-01-06", "2-1-06", "02.01.06", "2.1.06",
	"2006/01/02", "2006/1/2", "2006-01-02", "2006-1-2", "2006.01.02", "2006.1.2",
	"01/02/2006", "1/2/2006",
	"2 Jan 2006", "2 January 2006", "2-Jan-2006", "2-January-2006", "2 Jan 06", "2-Jan-06", "2Jan2006",
	"Jan 2 2006", "January 2 2006", "Jan 2 06", "January 2 06",
}

var (
	ordinalRe    = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)`)
	monthDotRe   = regexp.MustCompile(`(?i)([a-z])\.`)
	dateSpacesRe = regexp.MustCompile(`\s+`)
)

// DateExtractor finds the transaction date. Now is the reference clock;
// nil means time.Now.
type DateExtractor struct {
	Now func() time.Time
}

// Extract returns the first date in text that lies within the year before
// the reference time, or nil.
func (e DateExtractor) Extract(text string) *time.Time {
	ref := time.Now()
	if e.Now != nil {
		ref = e.Now()
	}
	earliest := ref.AddDate(-1, 0, 0)
	for _, re := range datePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			d, ok := parseDate(m[1], ref)
			if !ok || d.After(ref) || d.Before(earliest) {
				continue
			}
			return &d
		}
	}
	return nil
}

func parseDate(raw string, ref time.Time) (time.Time, bool) {
	s := ordinalRe.ReplaceAllString(strings.TrimSpace(raw), "$1")
	s = monthDotRe.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(dateSpacesRe.ReplaceAllString(strings.ReplaceAll(s, ",", " "), " "))

	// jinzhu/now reads numeric dates month first, so it only sees named months
	if hasLetter(s) {
		cfg := &now.Config{WeekStartDay: time.Monday, TimeLocation: ref.Location(), TimeFormats: now.TimeFormats}
		if t, err := cfg.With(ref).Parse(s); err == nil && fullDate(s, t) {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, ref.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fullDate rejects natural parses that filled a missing year or day from
// the reference time; the receipt must state all three.
func fullDate(s string, t time.Time) bool {
	return strings.Contains(s, t.Format("2006")) || strings.Contains(s, t.Format("06"))
}

func hasLetter(s string) bool {
	for i := 0; i < len(s); i++ {
		if isLetter(s[i]) {
			return true
		}
	}
	return false
}
