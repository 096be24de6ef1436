// Package testjson consumes the `go test -json` event stream and turns failed
// tests into capture invocations.
//
// Only named tests that fail are reported. Package-level failures (TestMain
// setup or teardown, build errors) carry no test name and are counted but
// never reported. A parent test that failed because a subtest failed is
// skipped; the failing leaf is reported instead.
package testjson

import (
	"strings"
	"time"
)

// Action values emitted by test2json.
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionOutput      = "output"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// Event is one line of `go test -json` output.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Output  string    `json:"Output"`
	Elapsed float64   `json:"Elapsed"`
}

// Summary counts test outcomes seen in a stream.
type Summary struct {
	Passed          int `json:"passed"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	Reported        int `json:"reported"`
	PackageFailures int `json:"package_failures"`
}

// OK reports whether the stream describes a passing run.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.PackageFailures == 0
}

func parentOf(test string) string {
	if i := strings.LastIndexByte(test, '/'); i >= 0 {
		return test[:i]
	}
	return ""
}

func topLevel(test string) string {
	if i := strings.IndexByte(test, '/'); i >= 0 {
		return test[:i]
	}
	return test
}
