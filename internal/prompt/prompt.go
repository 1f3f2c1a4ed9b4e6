// Package prompt renders the instruction sent to the AI fallback.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	RulesPlaceholder   = "{{RULES}}"
	CommandPlaceholder = "{{COMMAND}}"

	// NoRulesText stands in for a missing rules document.
	NoRulesText = "No specific rules defined."
)

// DefaultTemplate is used when no template file is configured.
//
//go:embed default_prompt.md
var DefaultTemplate string

// Render substitutes every occurrence of both placeholders. The command
// is inserted verbatim.
func Render(template, rulesText, command string) string {
	return strings.NewReplacer(
		RulesPlaceholder, rulesText,
		CommandPlaceholder, command,
	).Replace(template)
}

// LoadTemplate reads a template file. An empty path selects
// DefaultTemplate; a configured path that cannot be read is an error.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}
	tmpl := string(data)
	if !strings.Contains(tmpl, CommandPlaceholder) {
		return "", fmt.Errorf("prompt template %s has no %s placeholder", path, CommandPlaceholder)
	}
	return tmpl, nil
}

// LoadRulesText reads the plain-language rules document handed to the
// model. found is false when the path is empty or missing, in which
// case NoRulesText is returned.
func LoadRulesText(path string) (text string, found bool, err error) {
	if path == "" {
		return NoRulesText, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NoRulesText, false, nil
		}
		return "", false, fmt.Errorf("failed to read AI rules: %w", err)
	}
	return string(data), true, nil
}
