package utils

import "strings"

// NormalizeAddress strips transport prefixes and whitespace so the same
// customer always maps to the same session key.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "whatsapp:")
	return strings.TrimSpace(address)
}

// NormalizeInput trims and case-folds customer text before matching.
func NormalizeInput(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Truncate shortens s to max runes, adding "..." if truncated.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
