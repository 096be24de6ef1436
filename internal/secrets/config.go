package secrets

import (
	"fmt"
	"regexp"
)

// DefaultReplacement is written in place of every detected secret.
const DefaultReplacement = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled     bool     `koanf:"enabled"`
	Replacement string   `koanf:"replacement"`
	Rules       []Rule   `koanf:"rules"`
	AllowList   []string `koanf:"allow_list"` // matches of these patterns are kept

	// Gitleaks adds gitleaks' default detector to Rules.
	Gitleaks bool `koanf:"gitleaks"`
}

// Rule is a single detection rule.
type Rule struct {
	ID       string   `koanf:"id"`
	Pattern  string   `koanf:"pattern"`
	Keywords []string `koanf:"keywords"`

	// Group selects the capture group to redact. Zero redacts the whole match.
	Group int `koanf:"group"`
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
	group    int
}

// DefaultConfig returns an enabled config with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Replacement: DefaultReplacement,
		Rules:       DefaultRules(),
	}
}

func (c *Config) compile() ([]compiledRule, []*regexp.Regexp, error) {
	rules := make([]compiledRule, 0, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: id is required", i)
		}
		if r.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		if r.Group < 0 || r.Group > re.NumSubexp() {
			return nil, nil, fmt.Errorf("rule %s: group %d out of range", r.ID, r.Group)
		}
		cr := compiledRule{id: r.ID, pattern: re, group: r.Group}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		allow = append(allow, re)
	}
	return rules, allow, nil
}
