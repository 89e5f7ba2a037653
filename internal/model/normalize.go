package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the comparison form of an email address.
//
// The address is trimmed, converted to Unicode NFC and case folded so that
// visually identical inputs produce the same login key.
func NormalizeEmail(email string) string {
	s := strings.TrimSpace(email)
	s = norm.NFC.String(s)
	return cases.Fold().String(s)
}

// DisplayName capitalises each word of a full name.
func DisplayName(fullname string) string {
	words := strings.Fields(norm.NFC.String(fullname))
	caser := cases.Title(language.Und)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
