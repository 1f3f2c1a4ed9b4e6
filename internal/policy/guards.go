package policy

import "fmt"

// BuiltinGuards returns the always-on destructive and injection patterns.
// They are appended after user rules, so any user rule that matches the
// same command still wins.
func BuiltinGuards() RuleSet {
	dangerous := []struct {
		id      string
		pattern string
	}{
		{"guard-rm-root", `rm\s+-r[f]*\s+/`},
		{"guard-rm-fr-root", `rm\s+-[rf]*r[f]*\s+/`},
		{"guard-fork-bomb", `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;:\s*`},
		{"guard-random-flood", `cat\s+/dev/random`},
		{"guard-disk-fill", `dd\s+if=/dev/zero`},
		{"guard-raw-disk-write", `>\s*/dev/sd[a-z][0-9]*`},
		{"guard-mkfs", `mkfs\.`},
		{"guard-fdisk", `fdisk\s+/dev/`},
		{"guard-curl-pipe-shell", `curl.*\|\s*(sh|bash|zsh|fish)`},
		{"guard-wget-pipe-shell", `wget.*\|\s*(sh|bash|zsh|fish)`},
		{"guard-eval-subshell", `eval\s+["']?\$\(`},
		{"guard-sudo-chmod-777", `sudo\s+chmod\s+777`},
		{"guard-chmod-777-root", `chmod\s+777\s+/`},
	}
	injection := []struct {
		id      string
		pattern string
	}{
		{"guard-chained-rm", `;\s*rm\s+`},
		{"guard-and-rm", `&&\s*rm\s+`},
		{"guard-piped-rm", `\|\s*rm\s+`},
		{"guard-backtick-rm", "`.*rm.*`"},
		{"guard-subshell-rm", `\$\(.*rm.*\)`},
		{"guard-passwd-write", `>\s*/etc/passwd`},
		{"guard-shadow-write", `>\s*/etc/shadow`},
		{"guard-dev-tcp", `<\s*/dev/tcp/`},
	}

	rules := make(RuleSet, 0, len(dangerous)+len(injection))
	for _, d := range dangerous {
		rules = append(rules, Rule{
			ID:       d.id,
			Pattern:  d.pattern,
			Severity: SeverityCritical,
			Error:    fmt.Sprintf("Security violation: dangerous command pattern detected: %s", d.pattern),
			Reason:   "built-in guard",
		})
	}
	for _, d := range injection {
		rules = append(rules, Rule{
			ID:       d.id,
			Pattern:  "(?i)" + d.pattern,
			Severity: SeverityHigh,
			Error:    fmt.Sprintf("Security violation: command injection attempt detected: %s", d.pattern),
			Reason:   "built-in guard",
		})
	}
	return rules
}

// BlockedPatterns turns plain configured patterns into reject rules.
func BlockedPatterns(patterns []string) RuleSet {
	rules := make(RuleSet, 0, len(patterns))
	for i, p := range patterns {
		rules = append(rules, Rule{
			ID:       fmt.Sprintf("blocked-%d", i+1),
			Pattern:  p,
			Severity: SeverityHigh,
			Error:    fmt.Sprintf("Blocked command pattern: %s", p),
		})
	}
	return rules
}
