package decision

import (
	"errors"
	"fmt"
	"strings"
)

const (
	executePrefix = "EXECUTE: "
	errorPrefix   = "ERROR: "
)

var ErrBadLine = errors.New("unrecognized decision line")

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Encode renders d as exactly one line without a trailing newline.
func Encode(d Decision) string {
	switch d.Kind {
	case KindExecute:
		return executePrefix + lineBreaks.Replace(d.Replacement)
	case KindError:
		reason := d.Reason
		if reason == "" {
			reason = DefaultErrorMessage
		}
		return errorPrefix + lineBreaks.Replace(reason)
	default:
		return string(KindPass)
	}
}

// Decode parses a line produced by Encode. One trailing line ending is
// tolerated.
func Decode(line string) (Decision, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	switch {
	case line == string(KindPass):
		return Pass(""), nil
	case strings.HasPrefix(line, executePrefix):
		replacement := strings.TrimPrefix(line, executePrefix)
		if replacement == "" {
			return Decision{}, fmt.Errorf("%w: empty replacement", ErrBadLine)
		}
		return Execute(replacement, ""), nil
	case strings.HasPrefix(line, errorPrefix):
		return Reject(strings.TrimPrefix(line, errorPrefix), ""), nil
	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrBadLine, line)
	}
}
