// Package phone normalizes phone numbers for lookup. Input formats vary
// ("+1 (555) 123-4567", "555.123.4567"); the stored lookup key is digits only.
package phone

import "strings"

// Normalize strips everything but digits. An empty result means the input
// carried no usable number.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
