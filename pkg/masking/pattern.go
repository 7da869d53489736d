package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPattern is the uncompiled form of a shipped pattern.
type builtinPattern struct {
	name        string
	pattern     string
	replacement string
	description string
}

// builtinPatterns covers the credentials most likely to leak into
// notification text: chat tokens, code-host tokens, tracker keys, cloud
// keys, bearer headers, key-value assignments, and PEM blocks. Order
// matters: specific token shapes run before the generic assignment sweep.
var builtinPatterns = []builtinPattern{
	{
		name:        "slack_token",
		pattern:     `xox[baprs]-[0-9A-Za-z-]{10,}`,
		replacement: "[MASKED_SLACK_TOKEN]",
		description: "Slack bot, app, and user tokens",
	},
	{
		name:        "github_token",
		pattern:     `gh[pousr]_[0-9A-Za-z]{36,}`,
		replacement: "[MASKED_GITHUB_TOKEN]",
		description: "GitHub personal access and app tokens",
	},
	{
		name:        "linear_key",
		pattern:     `lin_api_[0-9A-Za-z]{20,}`,
		replacement: "[MASKED_LINEAR_KEY]",
		description: "Linear API keys",
	},
	{
		name:        "aws_access_key",
		pattern:     `AKIA[0-9A-Z]{16}`,
		replacement: "[MASKED_AWS_KEY]",
		description: "AWS access key ids",
	},
	{
		name:        "bearer_header",
		pattern:     `(?i)bearer\s+[0-9A-Za-z._~+/=-]{16,}`,
		replacement: "Bearer [MASKED]",
		description: "Authorization bearer values",
	},
	{
		name:        "private_key_block",
		pattern:     `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
		replacement: "[MASKED_PRIVATE_KEY]",
		description: "PEM private key blocks",
	},
	{
		name:        "secret_assignment",
		pattern:     `(?i)(api[_-]?key|apikey|secret|token|password|passwd)(["']?\s*[:=]\s*["']?)[^\s"',;]{6,}`,
		replacement: "${1}${2}[MASKED]",
		description: "Generic key=value secret assignments",
	},
}
