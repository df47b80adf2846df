package score

import "strings"

// Match counts how many expected substrings appear in text, ignoring case.
// Each entry is checked independently, so duplicates count once per entry.
func Match(text string, expected []string) (matched, total int) {
	lower := strings.ToLower(text)
	for _, exp := range expected {
		if strings.Contains(lower, strings.ToLower(exp)) {
			matched++
		}
	}
	return matched, len(expected)
}

// SuccessRate returns matched/total as a percentage, or 0 when total is 0.
func SuccessRate(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(matched) / float64(total) * 100
}
