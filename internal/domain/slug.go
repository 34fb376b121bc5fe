package domain

import (
	"regexp"
	"strings"
)

var slugExpr = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify lowercases value and collapses everything outside [a-z0-9-] into
// single dashes.
func Slugify(value string) string {
	base := strings.ToLower(strings.TrimSpace(value))
	if base == "" {
		return ""
	}
	base = strings.ReplaceAll(base, "_", "-")
	base = slugExpr.ReplaceAllString(base, "-")
	for strings.Contains(base, "--") {
		base = strings.ReplaceAll(base, "--", "-")
	}
	return strings.Trim(base, "-")
}
