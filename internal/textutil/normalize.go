package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var folder = cases.Fold()

// Fold applies NFKC, full-width to half-width folding and case folding.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	s = width.Fold.String(s)
	return folder.String(s)
}

// NormalizeTitle folds s and drops everything except letters and digits, so
// "Re：ゼロ 2nd" and "re:ゼロ2ND" compare equal.
func NormalizeTitle(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsCJK reports whether r is a Han, Hiragana, Katakana or Hangul rune.
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
