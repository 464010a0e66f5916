package relay

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	Created int // Header of a newly sent message
	Edited  int // Header of an edited message
	Error   int // Failure notices
	Muted   int // Message ids, code gutters
	CodeBg  int // Code block background
	Accent  int // Headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Created: 2,
		Edited:  3,
		Error:   1,
		Muted:   8,
		CodeBg:  0,
		Accent:  5,
	}
}
