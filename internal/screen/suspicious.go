package screen

import (
	"regexp"
	"sync"
)

var (
	suspicious     []*regexp.Regexp
	suspiciousOnce sync.Once
)

var suspiciousPatterns = []string{
	`sudo\s+rm`,
	`sudo\s+dd`,
	`sudo\s+mount`,
	`nc\s+.*-[le]`,
	`python.*-c.*exec`,
	`perl.*-e`,
	`ruby.*-e`,
	`node.*-e`,
}

// Suspicious returns the patterns and confusable characters found in
// command. These never block; callers log them for review.
func Suspicious(command string) []string {
	suspiciousOnce.Do(func() {
		for _, p := range suspiciousPatterns {
			suspicious = append(suspicious, regexp.MustCompile(p))
		}
	})

	var hits []string
	for _, re := range suspicious {
		if re.MatchString(command) {
			hits = append(hits, re.String())
		}
	}
	for _, t := range ScanCharacters(command) {
		if !t.Hidden {
			hits = append(hits, t.Category+" "+t.Codepoint)
		}
	}
	return hits
}
