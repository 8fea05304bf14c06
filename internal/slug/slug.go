// Package slug turns article titles into URL path segments.
package slug

import (
	"errors"
	"strconv"
	"strings"

	gslug "github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

const maxLength = 80

var ErrInvalid = errors.New("slug: invalid slug")

// Make transliterates, lowercases and joins the remaining alphanumeric runs with single
// hyphens. "Berita Terkini: Banjir di Jakarta!" becomes "berita-terkini-banjir-di-jakarta".
func Make(title string) string {
	// transliteration works on composed runes; editors paste decomposed text too
	s := gslug.Make(norm.NFC.String(title))
	s = strings.Join(strings.FieldsFunc(s, isSeparator), "-")

	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}
	return s
}

func isSeparator(r rune) bool {
	return r == '-' || r == '_'
}

// WithSuffix returns the n-th collision candidate: base, base-1, base-2, ...
func WithSuffix(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

// Validate accepts what Make produces: lowercase ASCII alphanumerics joined by single hyphens.
func Validate(s string) error {
	if !gslug.IsSlug(s) || strings.Contains(s, "_") || strings.Contains(s, "--") {
		return ErrInvalid
	}
	return nil
}
