package embedding

import (
	"strings"
	"unicode/utf16"
)

const (
	DefaultDimension = 1536
	DefaultMaxChars  = 8000
)

// NormalizeInput replaces newlines with spaces and keeps at most maxChars
// UTF-16 code units. No other whitespace handling is applied, so "hello" and
// "hello " stay distinct inputs. A supplementary character that would be cut
// in half is dropped whole.
func NormalizeInput(text string, maxChars int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if maxChars <= 0 {
		return text
	}
	units := 0
	for i, r := range text {
		n := utf16.RuneLen(r)
		if units+n > maxChars {
			return text[:i]
		}
		units += n
	}
	return text
}

// NormalizeInputUnits is NormalizeInput as UTF-16 code units. Unlike the
// string form it keeps the leading surrogate of a pair cut at maxChars.
func NormalizeInputUnits(text string, maxChars int) []uint16 {
	units := utf16.Encode([]rune(strings.ReplaceAll(text, "\n", " ")))
	if maxChars > 0 && len(units) > maxChars {
		units = units[:maxChars]
	}
	return units
}
