package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a rule file. A missing file yields an empty RuleSet so a
// fresh install runs on the built-in guards alone; any other read,
// parse or validation problem is returned.
func Load(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return Parse(data, path)
}

// LoadFiles loads several rule files and concatenates them in the given
// order, keeping each file's authored order.
func LoadFiles(paths []string) (RuleSet, error) {
	var all RuleSet
	for _, path := range paths {
		rules, err := Load(path)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	return all, nil
}

// Parse decodes a rule document. Both the bare list form and the
// mapping form (rules: / dangerous_patterns:) are accepted.
func Parse(data []byte, source string) (RuleSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules %s: %w", source, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	var rules RuleSet
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules %s: %w", source, err)
		}
	case yaml.MappingNode:
		var pack Pack
		if err := root.Decode(&pack); err != nil {
			return nil, fmt.Errorf("failed to parse rules %s: %w", source, err)
		}
		rules = append(pack.Rules, pack.DangerousPatterns...)
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("rules %s: expected a list of rules", source)
	default:
		return nil, fmt.Errorf("rules %s: expected a list of rules", source)
	}

	rules = rules.normalize()
	if err := rules.Validate(source); err != nil {
		return nil, err
	}
	return rules, nil
}

// Validate checks every rule and reports the first invalid one.
func (rs RuleSet) Validate(source string) error {
	for i, r := range rs {
		if _, err := compileRule(r); err != nil {
			return &RuleError{Source: source, Index: i, ID: r.ID, Err: err}
		}
	}
	return nil
}

func (rs RuleSet) normalize() RuleSet {
	out := make(RuleSet, len(rs))
	for i, r := range rs {
		if r.Error == "" && r.Message != "" {
			r.Error = r.Message
		}
		r.Message = ""
		if r.Severity == "" {
			r.Severity = SeverityMedium
		}
		out[i] = r
	}
	return out
}
