// Package normalize converts raw spreadsheet cell values into canonical typed
// values. Every function is pure and safe for concurrent use.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// stripMarks removes combining marks after canonical decomposition, so "Línea"
// becomes "Linea". A new transformer is built per call because transform
// chains carry state.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DisplayText is the storage form of a description: trimmed, inner runs of
// whitespace collapsed, accents stripped and upper-cased.
func DisplayText(raw string) string {
	return strings.ToUpper(stripMarks(collapseSpaces(raw)))
}

// MatchKey is the comparison form of a description: trimmed, whitespace
// collapsed, case-folded and accent-stripped. Two descriptions refer to the
// same catalog entry exactly when their MatchKeys are equal.
func MatchKey(raw string) string {
	return collapseSpaces(stripMarks(folder.String(raw)))
}

// HeaderKey is MatchKey with punctuation turned into spaces. It is only used
// to compare column headers and sheet names against alias lists, where
// "N° Seq." and "n seq" must be treated alike.
func HeaderKey(raw string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == 'º' || r == 'ª':
			return ' '
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return ' '
		}
	}, MatchKey(raw))
	return collapseSpaces(mapped)
}

var noneSentinels = map[string]struct{}{
	"ninguno":    {},
	"ninguna":    {},
	"none":       {},
	"sin codigo": {},
	"s/c":        {},
	"n/a":        {},
	"na":         {},
	"-":          {},
}

// IsNoneSentinel reports whether raw is one of the placeholders used in
// source sheets to say "no value".
func IsNoneSentinel(raw string) bool {
	_, ok := noneSentinels[MatchKey(raw)]
	return ok
}
