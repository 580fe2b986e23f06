package common

import (
	"regexp"
	"strconv"
	"strings"
)

var yearsPattern = regexp.MustCompile(`(\d+)\+?\s*(years?|yrs?)`)

// ParseYears extracts a minimum-years requirement from free text.
// Returns the parsed years, the surrounding context snippet and whether a
// match was found. "5+ years of Go" -> (5, "5+ years of Go", true).
func ParseYears(text string) (float64, string, bool) {
	loc := yearsPattern.FindStringSubmatchIndex(strings.ToLower(text))
	if loc == nil {
		return 0, "", false
	}

	match := yearsPattern.FindStringSubmatch(strings.ToLower(text))
	years, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", false
	}

	// Keep a short context window around the match for display
	start := loc[0] - 20
	if start < 0 {
		start = 0
	}
	end := loc[1] + 20
	if end > len(text) {
		end = len(text)
	}
	return years, strings.TrimSpace(text[start:end]), true
}
