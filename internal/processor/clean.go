package processor

import (
	"regexp"
	"strings"
	"unicode"
)

// allowedPunctuation lists the non-alphanumeric characters kept by Clean.
// Currency symbols matter for budget figures (₹ in particular).
const allowedPunctuation = `.,;:!?'"()[]{}%&/+=*@#$€£¥₹§°–—‘’“”…-`

var (
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
	lineEdgeRe    = regexp.MustCompile(` *\n *`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	lineEndingsRe = regexp.MustCompile(`\r\n?`)
)

// Clean normalizes whitespace, collapses blank lines and strips characters
// outside the allow-list. Unicode letters, marks and digits are preserved.
func Clean(text string) string {
	text = lineEndingsRe.ReplaceAllString(text, "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		case strings.ContainsRune(allowedPunctuation, r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	text = spaceRunRe.ReplaceAllString(b.String(), " ")
	text = lineEdgeRe.ReplaceAllString(text, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
