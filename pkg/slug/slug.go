// Package slug builds URL keys for clinics. Clinic names in the directory are
// mostly Turkish, Hungarian, Polish and German, so their diacritics are
// transliterated to ASCII before non-alphanumerics collapse to hyphens.
package slug

import (
	"regexp"
	"strings"
)

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	validShape = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

var transliterator = strings.NewReplacer(
	// Turkish; ToLower turns "İ" into "i" plus a combining dot
	"\u0307", "", "ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u", "â", "a", "î", "i", "û", "u",
	// Hungarian
	"á", "a", "é", "e", "í", "i", "ó", "o", "ő", "o", "ú", "u", "ű", "u",
	// Polish, Czech, Croatian
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n", "ś", "s", "ź", "z", "ż", "z",
	"č", "c", "ř", "r", "š", "s", "ž", "z", "đ", "d", "ě", "e", "ů", "u",
	// German
	"ä", "ae", "ß", "ss",
)

// Generate creates a URL-friendly slug from name.
//
//	"Dent İstanbul Kliniği" → "dent-istanbul-klinigi"
//	"Smile Győr"            → "smile-gyor"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = transliterator.Replace(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Valid reports whether s is already in canonical slug form.
func Valid(s string) bool {
	return validShape.MatchString(s)
}
