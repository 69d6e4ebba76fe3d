package sandbox

import "unicode/utf8"

// Truncate shortens text to at most max bytes, cutting on a rune boundary.
// The flag reports whether anything was dropped.
func Truncate(text string, max int) (string, bool) {
	if max < 0 {
		max = 0
	}
	if len(text) <= max {
		return text, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}

// TruncateRunes shortens text to at most max runes.
func TruncateRunes(text string, max int) string {
	if max < 0 {
		max = 0
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
