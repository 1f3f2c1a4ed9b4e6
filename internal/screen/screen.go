// Package screen holds the checks that run on a raw command before any
// rule or AI evaluation: shape limits, hidden characters and the
// log-only suspicious patterns.
package screen

import (
	"fmt"
	"strings"
)

const DefaultMaxLength = 1000

// MultilineMessage is the rejection text for any command carrying a
// line break.
const MultilineMessage = "multiline rejected"

type Limits struct {
	// MaxLength caps the command length in bytes. Zero disables the cap.
	MaxLength int
	// AllowInvisible turns off zero-width, bidi and tag character rejection.
	AllowInvisible bool
}

func DefaultLimits() Limits {
	return Limits{MaxLength: DefaultMaxLength}
}

// Rejection explains why a command failed screening.
type Rejection struct {
	Check   string
	Message string
}

// IsMultiline reports whether s contains a line break.
func IsMultiline(s string) bool {
	return strings.ContainsAny(s, "\n\r")
}

// Check applies the screening checks in a fixed order. The multiline
// check always runs first, so a multiline command is rejected with
// MultilineMessage whatever else is wrong with it.
func Check(command string, lim Limits) (Rejection, bool) {
	if IsMultiline(command) {
		return Rejection{Check: "multiline", Message: MultilineMessage}, true
	}
	if strings.IndexByte(command, 0) >= 0 {
		return Rejection{Check: "null-byte", Message: "null byte rejected"}, true
	}
	if lim.MaxLength > 0 && len(command) > lim.MaxLength {
		return Rejection{
			Check:   "length",
			Message: fmt.Sprintf("command too long (%d > %d bytes)", len(command), lim.MaxLength),
		}, true
	}
	if !lim.AllowInvisible {
		if threat, found := firstHidden(command); found {
			return Rejection{Check: threat.Category, Message: threat.Description}, true
		}
	}
	return Rejection{}, false
}
