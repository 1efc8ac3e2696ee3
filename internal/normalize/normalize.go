// Package normalize canonicalizes user-supplied identity fields.
package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Name trims a display name and collapses inner runs of whitespace.
func Name(n string) string {
	return strings.Join(strings.Fields(n), " ")
}
