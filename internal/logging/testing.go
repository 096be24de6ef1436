// internal/logging/testing.go
package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that keeps every entry in memory, down to Trace
// level, so capture and delivery code can be asserted on.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger creates a recording logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// Entries returns the recorded entries whose message contains snippet.
// An empty snippet matches every entry.
func (t *TestLogger) Entries(snippet string) []observer.LoggedEntry {
	if snippet == "" {
		return t.logs.All()
	}
	return t.logs.FilterMessageSnippet(snippet).All()
}

// Take returns the recorded entries and forgets them.
func (t *TestLogger) Take() []observer.LoggedEntry {
	return t.logs.TakeAll()
}

// AssertLogged fails tb unless an entry at level mentions snippet.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if t.find(level, snippet) < 0 {
		tb.Errorf("no %v entry mentions %q; recorded: %v", level, snippet, t.messages())
	}
}

// AssertNotLogged fails tb if an entry at level mentions snippet.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if i := t.find(level, snippet); i >= 0 {
		tb.Errorf("unexpected %v entry %q", level, t.logs.All()[i].Message)
	}
}

// AssertField fails tb unless an entry mentioning snippet carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, snippet, key string, want any) {
	tb.Helper()
	for _, e := range t.Entries(snippet) {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no entry mentioning %q has %s=%v", snippet, key, want)
}

func (t *TestLogger) find(level zapcore.Level, snippet string) int {
	for i, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, snippet) {
			return i
		}
	}
	return -1
}

func (t *TestLogger) messages() []string {
	all := t.logs.All()
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.Level.String() + " " + e.Message
	}
	return out
}
