package utils

import (
	"html"
	"strings"
)

// HTMLWithLineBreaks escapes markup in text and converts newlines to <br>
// tags, doubling the break at blank-line paragraph boundaries.
func HTMLWithLineBreaks(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n\n", "<br><br>")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return escaped
}
