package ocr

// Confidence tiers used when picking among amount candidates.
const (
	highCandidateConfidence   = 0.7
	mediumCandidateConfidence = 0.5
)

// BestCandidate picks the largest candidate with confidence above 0.7,
// else the largest above 0.5, else the largest of all. ok is false only
// when cands is empty. Equal values keep the more confident candidate.
func BestCandidate(cands []AmountCandidate) (AmountCandidate, bool) {
	if len(cands) == 0 {
		return AmountCandidate{}, false
	}
	for _, floor := range []float64{highCandidateConfidence, mediumCandidateConfidence} {
		if best, ok := largestAbove(cands, floor); ok {
			return best, true
		}
	}
	best, _ := largestAbove(cands, -1)
	return best, true
}

func largestAbove(cands []AmountCandidate, floor float64) (AmountCandidate, bool) {
	var best AmountCandidate
	found := false
	for _, c := range cands {
		if c.Confidence <= floor {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		switch cmp := c.Value.Cmp(best.Value); {
		case cmp > 0:
			best = c
		case cmp == 0 && c.Confidence > best.Confidence:
			best = c
		}
	}
	return best, found
}
