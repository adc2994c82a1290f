package util

import (
	"regexp"
	"strings"
)

var nonNumericRegex = regexp.MustCompile(`[^\d]`)

// CleanNumericString drops every non-digit, including grouping spaces and
// the non-breaking spaces marketplaces use in prices.
func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

// CollapseSpace trims s and folds internal whitespace runs into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
