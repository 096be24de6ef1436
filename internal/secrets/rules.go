package secrets

// DefaultRules returns the built-in rule set. Prefixed token formats need no
// keyword gate; looser patterns only run when a keyword is present.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Pattern: `\b(?:AKIA|ASIA|AGPA|AIDA|AROA|ANPA)[A-Z0-9]{16}\b`},
		{
			ID:       "aws-secret-access-key",
			Pattern:  `(?i)(?:aws_secret_access_key|secret_access_key)\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})`,
			Keywords: []string{"secret_access_key"},
			Group:    1,
		},
		{ID: "gcp-api-key", Pattern: `AIza[A-Za-z0-9_\-]{35}`},
		{ID: "github-token", Pattern: `\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}\b`},
		{ID: "github-fine-grained", Pattern: `github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-_]{20,}`},
		{ID: "slack-token", Pattern: `xox[abprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "stripe-key", Pattern: `(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`},
		{ID: "anthropic-api-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{32,}`},
		{ID: "openai-api-key", Pattern: `sk-(?:proj-)?[A-Za-z0-9]{32,}`},
		{ID: "npm-token", Pattern: `npm_[A-Za-z0-9]{36}`},
		{ID: "jwt", Pattern: `eyJ[A-Za-z0-9_-]{4,}\.eyJ[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]+`},
		{
			ID:      "private-key",
			Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----[\s\S]*?(?:-----END [A-Z ]*PRIVATE KEY(?: BLOCK)?-----|$)`,
		},
		{
			ID:       "bearer-token",
			Pattern:  `(?i)\bbearer\s+([A-Za-z0-9_\-\.=]{16,})`,
			Keywords: []string{"bearer"},
			Group:    1,
		},
		{
			ID:       "url-password",
			Pattern:  `(?i)\b[a-z][a-z0-9+.\-]*://[^:/\s@]+:([^@\s/]+)@`,
			Keywords: []string{"://"},
			Group:    1,
		},
		{
			ID:       "password-assignment",
			Pattern:  `(?i)\b(?:password|passwd|pwd|secret|api[_-]?key|token)\b["']?\s*[:=]\s*['"]?([^\s'",}]{6,})`,
			Keywords: []string{"pass", "pwd", "secret", "key", "token"},
			Group:    1,
		},
	}
}
