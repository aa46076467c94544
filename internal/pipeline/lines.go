package pipeline

import (
	"strings"
	"unicode"
)

// LineDelimiter separates encoded frames in a capture. It is the two
// characters backslash and n, not a newline byte.
const LineDelimiter = `\n`

// SplitLines trims leading whitespace from content and splits the rest on
// LineDelimiter, dropping empty segments. Order is preserved.
func SplitLines(content string) []string {
	content = strings.TrimLeftFunc(content, unicode.IsSpace)
	var out []string
	for _, part := range strings.Split(content, LineDelimiter) {
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
