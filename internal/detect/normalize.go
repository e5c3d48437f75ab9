package detect

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	paypalPrefix = regexp.MustCompile(`(?i)\bPAYPAL\b\s*\*\s*`)
	disallowed   = regexp.MustCompile(`[^A-Z0-9\s&.-]`)
	cardSuffix   = regexp.MustCompile(`(?i)\s*(?:\*+\d{2,6}|CARD\s*\d{2,6})\s*$`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

// brandHints are matched as substrings of the cleaned text, in order.
var brandHints = []string{"NETFLIX", "SPOTIFY", "AMAZON"}

const maxHintLen = 255

// Normalize turns a raw statement description into an uppercase, punctuation
// free merchant string.
//
// Known limitation: '*' is replaced by a space before the card suffix is
// stripped, so "NETFLIX*1234" becomes "NETFLIX 1234" rather than "NETFLIX".
// Only the "CARD 1234" suffix form is removed.
func Normalize(raw string) string {
	s := Upper(strings.TrimSpace(raw))
	s = paypalPrefix.ReplaceAllString(s, "")
	s = disallowed.ReplaceAllString(s, " ")
	s = cardSuffix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ".COM", "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CanonicalHint collapses known brands to their bare name and otherwise
// returns cleaned truncated to 255 characters.
func CanonicalHint(cleaned string) string {
	for _, brand := range brandHints {
		if strings.Contains(cleaned, brand) {
			return brand
		}
	}
	r := []rune(cleaned)
	if len(r) > maxHintLen {
		return string(r[:maxHintLen])
	}
	return cleaned
}

// Upper applies full Unicode upper-case mapping, so "ß" becomes "SS" where
// strings.ToUpper would keep it.
func Upper(s string) string {
	return cases.Upper(language.Und).String(s)
}
