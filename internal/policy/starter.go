package policy

import _ "embed"

// StarterRules is the rules file written by "cmdauditor setup" when none
// exists yet.
//
//go:embed starter_rules.yaml
var StarterRules []byte
