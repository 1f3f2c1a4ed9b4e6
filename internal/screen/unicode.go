package screen

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Threat is a character that makes the displayed command differ from
// the one the shell would run.
type Threat struct {
	Category    string
	Description string
	Position    int
	Codepoint   string
	Hidden      bool // rejected; otherwise only logged
}

// ScanCharacters lists every hidden or confusable character in s.
func ScanCharacters(s string) []Threat {
	var threats []Threat
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			threats = append(threats, Threat{
				Category:    "invalid-utf8",
				Description: fmt.Sprintf("invalid UTF-8 byte 0x%02X rejected", s[i]),
				Position:    i,
				Codepoint:   fmt.Sprintf("0x%02X", s[i]),
				Hidden:      true,
			})
			i++
			continue
		}
		if t, ok := classify(r, i); ok {
			threats = append(threats, t)
		}
		i += size
	}
	return threats
}

func firstHidden(s string) (Threat, bool) {
	for _, t := range ScanCharacters(s) {
		if t.Hidden {
			return t, true
		}
	}
	return Threat{}, false
}

func classify(r rune, pos int) (Threat, bool) {
	cp := fmt.Sprintf("U+%04X", r)
	hidden := func(category, what string) (Threat, bool) {
		return Threat{
			Category:    category,
			Description: fmt.Sprintf("%s %s rejected", what, cp),
			Position:    pos,
			Codepoint:   cp,
			Hidden:      true,
		}, true
	}

	switch {
	case isZeroWidth(r):
		return hidden("zero-width", "zero-width character")
	case isBidiControl(r):
		return hidden("bidi-control", "bidirectional control")
	case r >= 0xE0001 && r <= 0xE007F:
		return hidden("tag-char", "unicode tag character")
	case isUnsafeControl(r):
		return hidden("control-char", "control character")
	}

	if latin, ok := confusables[r]; ok && (unicode.Is(unicode.Cyrillic, r) || unicode.Is(unicode.Greek, r)) {
		return Threat{
			Category:    "homoglyph",
			Description: fmt.Sprintf("%s looks like latin '%c'", cp, latin),
			Position:    pos,
			Codepoint:   cp,
		}, true
	}
	return Threat{}, false
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F':
		return true
	}
	return false
}

func isBidiControl(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

// Tab is the only C0 control a typed command line may carry.
func isUnsafeControl(r rune) bool {
	if r == '\t' {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

var confusables = map[rune]rune{
	// Cyrillic
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'К': 'K', 'М': 'M', 'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P', 'Т': 'T', 'х': 'x', 'Х': 'X', 'у': 'y', 'У': 'Y',
	// Greek
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}
