// Package decision merges rule and AI outcomes into one verdict per
// command and encodes it for the shell side.
package decision

type Kind string

const (
	KindPass    Kind = "PASS"
	KindExecute Kind = "EXECUTE"
	KindError   Kind = "ERROR"
)

// Source records which stage produced a Decision. It is carried for
// audit and metrics only and never reaches the protocol line.
type Source string

const (
	SourceEmpty    Source = "empty"
	SourceScreen   Source = "screen"
	SourceRule     Source = "rule"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
	SourceSkipped  Source = "skipped"
)

const DefaultErrorMessage = "Command blocked"

// Decision is Pass, Execute with a replacement, or Error with a reason.
type Decision struct {
	Kind        Kind   `json:"action"`
	Replacement string `json:"command,omitempty"`
	Reason      string `json:"message,omitempty"`

	Source   Source `json:"source,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Fallback string `json:"fallback,omitempty"` // guardian error kind when Source is fallback
	Note     string `json:"reason,omitempty"`   // free-text explanation, never enforced
}

func Pass(src Source) Decision {
	return Decision{Kind: KindPass, Source: src}
}

func Execute(replacement string, src Source) Decision {
	return Decision{Kind: KindExecute, Replacement: replacement, Source: src}
}

func Reject(reason string, src Source) Decision {
	if reason == "" {
		reason = DefaultErrorMessage
	}
	return Decision{Kind: KindError, Reason: reason, Source: src}
}

// Same reports whether two decisions have the same enforced content,
// ignoring provenance.
func (d Decision) Same(o Decision) bool {
	return d.Kind == o.Kind && d.Replacement == o.Replacement && d.Reason == o.Reason
}
