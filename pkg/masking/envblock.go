package masking

import (
	"regexp"
	"strings"
)

// envAssignment matches one env-file line whose variable name marks it as
// secret-bearing. Values are masked wholesale; names survive so the block
// stays readable.
var envAssignment = regexp.MustCompile(`(?m)^(\s*(?:export\s+)?[A-Z][A-Z0-9_]*(?:TOKEN|SECRET|KEY|PASSWORD|PASSWD|CREDENTIALS))=.*$`)

var envHints = []string{"TOKEN=", "SECRET=", "KEY=", "PASSWORD=", "PASSWD=", "CREDENTIALS="}

// EnvBlockMasker masks secret-bearing assignments inside env-file style
// blocks, which show up when agents paste configuration into status
// updates.
type EnvBlockMasker struct{}

// Name returns the unique identifier for this masker.
func (m *EnvBlockMasker) Name() string {
	return "env_block"
}

// AppliesTo checks for env-assignment markers without parsing.
func (m *EnvBlockMasker) AppliesTo(data string) bool {
	upper := strings.ToUpper(data)
	for _, hint := range envHints {
		if strings.Contains(upper, hint) {
			return true
		}
	}
	return false
}

// Mask replaces the value of every secret-bearing assignment line.
func (m *EnvBlockMasker) Mask(data string) string {
	return envAssignment.ReplaceAllString(data, "${1}=[MASKED]")
}
