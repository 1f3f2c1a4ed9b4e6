package policy

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities for reporting. Matching never looks at it.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rule maps a regex over the raw command to exactly one outcome:
// a replacement template or a rejection message.
type Rule struct {
	ID       string   `yaml:"id,omitempty"`
	Pattern  string   `yaml:"pattern"`
	Severity Severity `yaml:"severity,omitempty"`
	Replace  string   `yaml:"replace,omitempty"`
	Error    string   `yaml:"error,omitempty"`
	Reason   string   `yaml:"reason,omitempty"`

	// Message is the legacy spelling of Error used by dangerous_patterns files.
	Message string `yaml:"message,omitempty"`
}

// RuleSet is the ordered rule list. Order is precedence: first match wins.
type RuleSet []Rule

type OutcomeKind int

const (
	OutcomeReplace OutcomeKind = iota + 1
	OutcomeReject
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReplace:
		return "replace"
	case OutcomeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Outcome is what a matched rule produced for one command.
// Text is the rewritten command for OutcomeReplace and the
// rejection message for OutcomeReject.
type Outcome struct {
	Kind     OutcomeKind
	Text     string
	RuleID   string
	Severity Severity
	Reason   string
}

var ErrInvalidRule = errors.New("invalid rule")

// RuleError locates a rule that failed validation.
type RuleError struct {
	Source string
	Index  int
	ID     string
	Err    error
}

func (e *RuleError) Error() string {
	where := fmt.Sprintf("rule #%d", e.Index+1)
	if e.ID != "" {
		where += fmt.Sprintf(" (%s)", e.ID)
	}
	if e.Source != "" {
		where += " in " + e.Source
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}
