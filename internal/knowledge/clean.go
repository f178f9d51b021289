package knowledge

import (
	"regexp"
	"strings"
)

var (
	listNumberRe = regexp.MustCompile(`\b\d+\.(\w)`)
	punctRe      = regexp.MustCompile(`[^\w\s]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// CleanText normalizes free text before embedding: markdown emphasis is
// stripped, newlines become comma separators, numbered-list prefixes
// ("1.Check" style) and remaining punctuation are removed.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "*", "")
	text = strings.ReplaceAll(text, "\n", ", ")
	text = listNumberRe.ReplaceAllString(text, "$1")
	text = punctRe.ReplaceAllString(text, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
