package decision

import (
	"strings"

	"github.com/gzhole/cmdauditor/internal/guardian"
	"github.com/gzhole/cmdauditor/internal/policy"
	"github.com/gzhole/cmdauditor/internal/screen"
)

const (
	MultilineReplacementMessage = "multiline replacement rejected"
	EmptyReplacementMessage     = "empty replacement rejected"
)

// Inputs is everything known about one command when it is resolved.
// Rule is nil when no rule matched. AI and AIErr are both zero when the
// AI was not consulted.
type Inputs struct {
	Command string
	Rule    *policy.Outcome
	AI      *guardian.Response
	AIErr   error
}

// Resolve applies the fixed precedence: multiline, rule, AI verdict,
// fail-open PASS. A rule always beats the AI.
func Resolve(in Inputs) Decision {
	if screen.IsMultiline(in.Command) {
		return Reject(screen.MultilineMessage, SourceScreen)
	}

	if in.Rule != nil {
		var d Decision
		switch in.Rule.Kind {
		case policy.OutcomeReject:
			d = Reject(in.Rule.Text, SourceRule)
		case policy.OutcomeReplace:
			d = rewrite(in.Rule.Text, SourceRule)
		default:
			d = Pass(SourceRule)
		}
		d.RuleID = in.Rule.RuleID
		d.Note = in.Rule.Reason
		return d
	}

	if in.AIErr != nil || in.AI == nil {
		d := Pass(SourceFallback)
		d.Fallback = string(guardian.KindOf(in.AIErr))
		if d.Fallback == "" {
			d.Fallback = string(guardian.KindUnavailable)
		}
		return d
	}

	var d Decision
	switch in.AI.Action {
	case guardian.ActionPass:
		d = Pass(SourceAI)
	case guardian.ActionExecute:
		d = rewrite(in.AI.Command, SourceAI)
	case guardian.ActionError:
		d = Reject(in.AI.Message, SourceAI)
	default:
		d = Pass(SourceFallback)
		d.Fallback = string(guardian.KindParse)
	}
	d.Note = in.AI.Reason
	return d
}

func rewrite(replacement string, src Source) Decision {
	if screen.IsMultiline(replacement) {
		return Reject(MultilineReplacementMessage, src)
	}
	if strings.TrimSpace(replacement) == "" {
		return Reject(EmptyReplacementMessage, src)
	}
	return Execute(replacement, src)
}
