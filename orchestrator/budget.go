package orchestrator

import (
	"regexp"
	"strconv"
	"strings"
)

var budgetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:under|below|max|maximum|up\s+to)\s*\$?\s*([0-9,]+(?:\.[0-9]{2})?)\s*(?:usd|dollars?)?`),
	regexp.MustCompile(`\$?\s*([0-9,]+(?:\.[0-9]{2})?)\s*(?:or\s+)?(?:less|under|below|max)`),
}

// ExtractBudget finds a price ceiling phrased in free text, such as
// "under $1500", "max 2,000" or "1400 or less". It returns false when the
// text states no positive ceiling.
func ExtractBudget(text string) (float64, bool) {
	lower := strings.ToLower(text)
	for _, pattern := range budgetPatterns {
		m := pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		return v, true
	}
	return 0, false
}
