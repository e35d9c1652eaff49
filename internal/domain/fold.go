package domain

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns the NFC form of s with Unicode case folding applied.
// Case-insensitive comparisons in the catalog compare folded strings.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
