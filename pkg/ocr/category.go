package ocr

import "strings"

const (
	// minCategoryScore is the score a category must beat to be reported
	minCategoryScore = 0.3
	multiMatchBonus  = 1.2
)

// Category labels.
const (
	CategoryFood          = "Food & Dining"
	CategoryGroceries     = "Groceries"
	CategoryTransport     = "Transportation"
	CategoryUtilities     = "Bills & Utilities"
	CategoryHealth        = "Healthcare"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryTravel        = "Travel"
	CategoryEducation     = "Education"
	CategoryPersonal      = "Personal Care"
)

type categoryRule struct {
	label    string
	keywords []string
	base     float64
}

// categoryRules is evaluated in order; earlier rules win ties.
var categoryRules = []categoryRule{
	{CategoryFood, []string{"restaurant", "cafe", "coffee", "kfc", "mcdonald", "pizza", "burger", "lunch", "dinner", "breakfast"}, 0.95},
	{CategoryGroceries, []string{"supermarket", "grocery", "keells", "cargills", "arpico", "vegetables", "fruit", "milk", "bread", "rice"}, 0.9},
	{CategoryTransport, []string{"fuel", "petrol", "diesel", "uber", "pickme", "taxi", "parking", "toll", "bus", "train"}, 0.9},
	{CategoryUtilities, []string{"electricity", "water bill", "internet", "broadband", "dialog", "mobitel", "telecom", "ceb", "utility", "bill payment"}, 0.85},
	{CategoryHealth, []string{"pharmacy", "hospital", "clinic", "doctor", "medical", "medicine", "dental", "laboratory", "channelling", "tablets"}, 0.9},
	{CategoryShopping, []string{"fashion", "clothing", "shoes", "electronics", "mall", "boutique", "textile", "apparel", "store", "shop"}, 0.8},
	{CategoryEntertainment, []string{"cinema", "movie", "theatre", "concert", "tickets", "netflix", "spotify", "game", "bowling", "amusement"}, 0.85},
	{CategoryTravel, []string{"hotel", "resort", "airline", "flight", "booking", "airbnb", "travel", "tour", "hostel", "villa"}, 0.85},
	{CategoryEducation, []string{"school", "tuition", "university", "college", "course", "books", "bookshop", "stationery", "exam", "academy"}, 0.85},
	{CategoryPersonal, []string{"salon", "spa", "barber", "haircut", "cosmetics", "beauty", "gym", "fitness", "massage", "grooming"}, 0.85},
}

// CategoryClassifier suggests a spending category from keywords.
type CategoryClassifier struct{}

// Classify scores every category as matched/total keywords times its base
// confidence, with a bonus when more than one keyword matched. It returns
// nil when the best score is 0.3 or less.
func (CategoryClassifier) Classify(text string) (*string, float64) {
	low := strings.ToLower(text)
	bestScore := 0.0
	best := -1
	for i, r := range categoryRules {
		matched := 0
		for _, kw := range r.keywords {
			if containsWord(low, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(r.keywords)) * r.base
		if matched > 1 {
			score *= multiMatchBonus
		}
		if score > bestScore {
			bestScore, best = score, i
		}
	}
	if best < 0 || bestScore <= minCategoryScore {
		return nil, 0
	}
	return strPtr(categoryRules[best].label), clamp01(bestScore)
}

// containsWord reports whether kw occurs in low as a whole word, allowing a
// plural s: "burger" matches "burgers" but "bus" does not match "business".
func containsWord(low, kw string) bool {
	for from := 0; from < len(low); {
		i := strings.Index(low[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		if i == 0 || !isLetter(low[i-1]) {
			end := i + len(kw)
			if end == len(low) || !isLetter(low[end]) || low[end] == 's' && (end+1 == len(low) || !isLetter(low[end+1])) {
				return true
			}
		}
		from = i + 1
	}
	return false
}
