package secrets

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Finding is one detected secret. The matched value is never retained.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Line   int    `json:"line"`
}

// Result is the outcome of scrubbing one input.
type Result struct {
	Scrubbed string    `json:"scrubbed"`
	Findings []Finding `json:"findings,omitempty"`
}

// ByRule counts findings per rule id.
func (r Result) ByRule() map[string]int {
	counts := make(map[string]int, len(r.Findings))
	for _, f := range r.Findings {
		counts[f.RuleID]++
	}
	return counts
}

// Scrubber redacts secrets from text. It is safe for concurrent use; a nil
// or disabled Scrubber returns input unchanged.
type Scrubber struct {
	enabled     bool
	replacement string
	rules       []compiledRule
	allow       []*regexp.Regexp
	gitleaks    *detector
}

// New compiles cfg into a Scrubber. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Scrubber{enabled: cfg.Enabled, replacement: cfg.Replacement}
	if s.replacement == "" {
		s.replacement = DefaultReplacement
	}
	if !cfg.Enabled {
		return s, nil
	}
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	s.rules, s.allow = rules, allow
	if cfg.Gitleaks {
		d, err := newDetector()
		if err != nil {
			return nil, fmt.Errorf("loading gitleaks rules: %w", err)
		}
		s.gitleaks = d
	}
	return s, nil
}

// MustNew is New that panics on an invalid config.
func MustNew(cfg *Config) *Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Enabled reports whether the scrubber redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub returns content with every detected secret replaced.
func (s *Scrubber) Scrub(content string) string {
	return s.Inspect(content).Scrubbed
}

// Inspect scrubs content and reports what was found.
func (s *Scrubber) Inspect(content string) Result {
	res := Result{Scrubbed: content}
	if !s.Enabled() || content == "" {
		return res
	}

	var spans []Finding
	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[2*rule.group], m[2*rule.group+1]
			if start < 0 || start == end {
				continue
			}
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, Finding{
				RuleID: rule.id,
				Start:  start,
				End:    end,
				Line:   strings.Count(content[:start], "\n") + 1,
			})
		}
	}
	if s.gitleaks != nil {
		for _, sp := range s.gitleaks.spans(content) {
			if !s.allowed(content[sp.Start:sp.End]) {
				spans = append(spans, sp)
			}
		}
	}
	if len(spans) == 0 {
		return res
	}

	slices.SortFunc(spans, func(a, b Finding) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})
	res.Findings = spans
	res.Scrubbed = s.apply(content, merge(spans))
	return res
}

func (s *Scrubber) apply(content string, spans []Finding) string {
	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range spans {
		b.WriteString(content[prev:sp.Start])
		b.WriteString(s.replacement)
		prev = sp.End
	}
	b.WriteString(content[prev:])
	return b.String()
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func (r compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// merge collapses overlapping or adjacent spans. Input must be sorted by start.
func merge(spans []Finding) []Finding {
	out := []Finding{spans[0]}
	for _, cur := range spans[1:] {
		last := &out[len(out)-1]
		if cur.Start <= last.End {
			last.End = max(last.End, cur.End)
			continue
		}
		out = append(out, cur)
	}
	return out
}
