package ocr

import (
	"regexp"
	"strings"
)

var (
	// a currency or total label followed by something digit-like
	confusableAmountRe = regexp.MustCompile(`(?i)((?:total|amount|due|rs\.?|lkr|rp\.?|\$|€|£)\s*[:=-]?\s*)([0-9oOdDlIsSB][0-9oOdDlIsSB .,]{0,15})`)

	// the shape a repair must produce
	repairedAmountRe = regexp.MustCompile(`^` + numberExpr + `$`)
	// an amount with cents that needs no help
	cleanAmountRe = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d+)[.,]\d{2}$`)

	confusionMap = strings.NewReplacer(
		"o", "0", "O", "0", "d", "0", "D", "0",
		"l", "1", "I", "1",
		"s", "5", "S", "5",
		"B", "8",
	)
)

// repairConfusions rebuilds amounts that the recognizer read with letters in
// place of digits ("Rs l,25O.OO") or split with stray spaces ("Rs 6 0 0.00").
// Only text right after a currency or total label is touched, and a run
// never extends into a following word. ok is false when nothing changed.
func repairConfusions(line string) (string, bool) {
	var b strings.Builder
	last := 0
	for _, m := range confusableAmountRe.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[4], m[5]
		run := line[start:end]
		if end < len(line) && isLetter(line[end]) {
			// the run stopped inside a word such as "Dr" or "DUE"; drop it
			i := strings.LastIndexByte(run, ' ')
			if i < 0 {
				continue
			}
			run = run[:i]
		}
		run = strings.TrimRight(run, " .,")
		fixed, n, ok := repairAmount(run)
		if !ok || fixed == run[:n] {
			continue
		}
		b.WriteString(line[last:start])
		b.WriteString(fixed)
		last = start + n
	}
	if last == 0 {
		return line, false
	}
	b.WriteString(line[last:])
	return b.String(), true
}

// repairAmount maps confusable letters in run to digits and joins digit
// groups split by spaces. It returns the repaired text and how many bytes
// of run it replaces. A leading amount that already reads cleanly is
// never joined with what follows it.
func repairAmount(run string) (string, int, bool) {
	tokens := strings.Fields(run)
	if len(tokens) == 0 {
		return "", 0, false
	}
	n := len(run)
	if cleanAmountRe.MatchString(tokens[0]) {
		tokens, n = tokens[:1], len(tokens[0])
	}
	fixed := confusionMap.Replace(strings.Join(tokens, ""))
	if !repairedAmountRe.MatchString(fixed) {
		return "", 0, false
	}
	return fixed, n, true
}

// withRepairedAlternates appends a repaired reading to every line where one exists.
func withRepairedAlternates(lines []RecognizedLine) []RecognizedLine {
	out := make([]RecognizedLine, len(lines))
	for i, l := range lines {
		out[i] = l
		if fixed, ok := repairConfusions(l.Text); ok && !containsString(l.Alternates, fixed) {
			out[i].Alternates = append(append([]string(nil), l.Alternates...), fixed)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
