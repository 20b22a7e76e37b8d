// Package slug derives URL-safe slugs from display names, used when the
// upstream payload does not carry one.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes diacritics: decompose, drop combining marks, recompose.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make lowercases the name, strips diacritics and replaces every non
// alphanumeric run with a single hyphen: "Cefn Mawr & Llangollen Rural"
// becomes "cefn-mawr-llangollen-rural".
func Make(name string) string {
	ascii, _, err := transform.String(stripMarks, name)
	if err != nil {
		ascii = name
	}

	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(ascii) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
