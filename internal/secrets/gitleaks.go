package secrets

import (
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksDefault is gitleaks' default rule set, compiled once per process.
var gitleaksDefault = sync.OnceValues(detect.NewDetectorDefaultConfig)

// detector serializes access to a shared gitleaks detector.
type detector struct {
	mu sync.Mutex
	d  *detect.Detector
}

func newDetector() (*detector, error) {
	d, err := gitleaksDefault()
	if err != nil {
		return nil, err
	}
	return &detector{d: d}, nil
}

// spans locates every occurrence of each secret gitleaks reports in content.
func (g *detector) spans(content string) []Finding {
	g.mu.Lock()
	found := g.d.DetectString(content)
	g.mu.Unlock()

	var spans []Finding
	seen := make(map[string]bool, len(found))
	for _, f := range found {
		if f.Secret == "" || seen[f.Secret] {
			continue
		}
		seen[f.Secret] = true
		for off := 0; ; {
			i := strings.Index(content[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			end := start + len(f.Secret)
			spans = append(spans, Finding{
				RuleID: "gitleaks:" + f.RuleID,
				Start:  start,
				End:    end,
				Line:   strings.Count(content[:start], "\n") + 1,
			})
			off = end
		}
	}
	return spans
}
