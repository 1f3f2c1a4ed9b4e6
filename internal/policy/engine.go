package policy

import (
	"fmt"
	"regexp"
	"strings"
)

type compiledRule struct {
	rule    Rule
	re      *regexp.Regexp
	replace string // Go expansion template
}

// Engine evaluates a command against an immutable, ordered RuleSet.
type Engine struct {
	rules []compiledRule
}

func NewEngine(rules RuleSet) (*Engine, error) {
	rules = rules.normalize()
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		cr, err := compileRule(r)
		if err != nil {
			return nil, &RuleError{Index: i, ID: r.ID, Err: err}
		}
		compiled = append(compiled, cr)
	}
	return &Engine{rules: compiled}, nil
}

// Evaluate returns the outcome of the first rule whose pattern matches
// anywhere in command. ok is false when nothing matched.
func (e *Engine) Evaluate(command string) (Outcome, bool) {
	for _, cr := range e.rules {
		if !cr.re.MatchString(command) {
			continue
		}
		out := Outcome{
			RuleID:   cr.rule.ID,
			Severity: cr.rule.Severity,
			Reason:   cr.rule.Reason,
		}
		if cr.rule.Error != "" {
			out.Kind = OutcomeReject
			out.Text = cr.rule.Error
		} else {
			out.Kind = OutcomeReplace
			out.Text = cr.re.ReplaceAllString(command, cr.replace)
		}
		return out, true
	}
	return Outcome{}, false
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Rules returns a copy of the loaded rules in evaluation order.
func (e *Engine) Rules() RuleSet {
	out := make(RuleSet, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.rule
	}
	return out
}

func compileRule(r Rule) (compiledRule, error) {
	if r.Pattern == "" {
		return compiledRule{}, fmt.Errorf("%w: pattern is required", ErrInvalidRule)
	}
	hasReplace := r.Replace != ""
	hasError := r.Error != "" || r.Message != ""
	switch {
	case hasReplace && hasError:
		return compiledRule{}, fmt.Errorf("%w: replace and error are mutually exclusive", ErrInvalidRule)
	case !hasReplace && !hasError:
		return compiledRule{}, fmt.Errorf("%w: one of replace or error is required", ErrInvalidRule)
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return compiledRule{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, r.Severity)
	}

	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("%w: bad pattern: %v", ErrInvalidRule, err)
	}
	return compiledRule{rule: r, re: re, replace: translateBackrefs(r.Replace)}, nil
}

// translateBackrefs rewrites \1 and \g<name> references into the
// ${1} and ${name} forms regexp.Expand understands. \\ becomes a single
// backslash and a bare $ stays literal, so shell variables survive.
func translateBackrefs(tmpl string) string {
	if !strings.ContainsAny(tmpl, `\$`) {
		return tmpl
	}

	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '$' {
			b.WriteString("$$")
			continue
		}
		if c != '\\' || i+1 >= len(tmpl) {
			b.WriteByte(c)
			continue
		}

		next := tmpl[i+1]
		switch {
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(tmpl) && j < i+3 && tmpl[j] >= '0' && tmpl[j] <= '9' {
				j++
			}
			fmt.Fprintf(&b, "${%s}", tmpl[i+1:j])
			i = j - 1
		case next == 'g' && i+2 < len(tmpl) && tmpl[i+2] == '<':
			end := strings.IndexByte(tmpl[i+3:], '>')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			fmt.Fprintf(&b, "${%s}", tmpl[i+3:i+3+end])
			i = i + 3 + end
		case next == '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
