package indexer

import "strings"

// Normalize collapses every run of whitespace (spaces, tabs, newlines) to a
// single space and trims the result.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
