package relay

import (
	"fmt"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// LenFunc measures text against a platform length limit.
type LenFunc func(string) int

// Runes counts Unicode code points. It is the default unit.
func Runes(s string) int { return utf8.RuneCountInString(s) }

// Bytes counts UTF-8 bytes.
func Bytes(s string) int { return len(s) }

// Graphemes counts user-perceived characters (extended grapheme clusters).
func Graphemes(s string) int { return uniseg.GraphemeClusterCount(s) }

// ParseLenFunc resolves a length unit name from configuration.
// The empty string selects Runes.
func ParseLenFunc(unit string) (LenFunc, error) {
	switch unit {
	case "", "runes":
		return Runes, nil
	case "bytes":
		return Bytes, nil
	case "graphemes":
		return Graphemes, nil
	default:
		return nil, fmt.Errorf("unknown length unit %q: %w", unit, ErrValidation)
	}
}
