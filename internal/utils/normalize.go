package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var turkishASCII = map[rune]rune{
	'ç': 'c',
	'ğ': 'g',
	'ı': 'i',
	'ö': 'o',
	'ş': 's',
	'ü': 'u',
	'â': 'a',
	'î': 'i',
	'û': 'u',
}

// Fold lower-cases s with Turkish casing rules, maps Turkish letters to their
// ASCII base and drops everything that is not a letter or digit.
func Fold(s string) string {
	// a Caser keeps state and must not be shared between goroutines
	lower := cases.Lower(language.Turkish).String(s)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if mapped, ok := turkishASCII[r]; ok {
			r = mapped
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Digits keeps only ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchesQuery is the in-memory search predicate for contact records: the
// folded query must be a substring of the folded name or email, or the
// query's digits a substring of the phone's digits.
func MatchesQuery(query, name, email, phone string) bool {
	folded := Fold(query)
	digits := Digits(query)
	if folded == "" && digits == "" {
		return strings.TrimSpace(query) == ""
	}
	if folded != "" {
		if strings.Contains(Fold(name), folded) || strings.Contains(Fold(email), folded) {
			return true
		}
	}
	if digits != "" && strings.Contains(Digits(phone), digits) {
		return true
	}
	return false
}
