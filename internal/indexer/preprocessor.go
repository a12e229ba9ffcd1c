package indexer

import (
	"strings"
	"unicode"
)

// Preprocess trims text, drops control characters and collapses whitespace runs to one space.
func Preprocess(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteByte(' ')
				wasSpace = true
			}
		case unicode.IsControl(r), r == '\ufffd':
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
