// Package goldmark renders chat-flavored markdown to ANSI-styled terminal
// output using goldmark for parsing and lipgloss for styling. It backs the
// console preview of relayed messages.
package goldmark

import "github.com/fwojciec/relay"

// DefaultWidth is used when Render is given a non-positive width.
const DefaultWidth = 80

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs, quotes and list items are word-wrapped to width. Code blocks
// are written as-is behind a gutter. Escape sequences in source are dropped
// before parsing.
func Render(source string, width int, theme relay.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return newRenderer(theme).render([]byte(Sanitize(source)), width)
}
