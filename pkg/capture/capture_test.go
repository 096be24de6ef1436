package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/failtrack/internal/delivery"
	"github.com/fyrsmithlabs/failtrack/internal/extract"
	"github.com/fyrsmithlabs/failtrack/internal/hooks"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

type recorder struct {
	mu   sync.Mutex
	recs []*v1.FailureRecord
}

func (r *recorder) Deliver(_ context.Context, rec *v1.FailureRecord) delivery.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return delivery.Result{Delivered: true, FailureID: "f1"}
}

func (r *recorder) take() []*v1.FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.recs
	r.recs = nil
	return recs
}

var delivered = &recorder{}

func TestMain(m *testing.M) {
	hooks.New(extract.New(), delivered).Register()
	os.Exit(m.Run())
}

// fakeTB reports a fixed name and failure state without failing the real test.
type fakeTB struct {
	testing.TB
	name   string
	failed bool
}

func (f *fakeTB) Name() string { return f.name }
func (f *fakeTB) Failed() bool { return f.failed }

func thisFile(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return file
}

func TestGuard_PassingTestReportsNothing(t *testing.T) {
	delivered.take()
	func() {
		defer Guard(&fakeTB{TB: t, name: "TestPass"}, Vars{"x": 1})
	}()
	assert.Empty(t, delivered.take())
}

func TestGuard_PanicIsCapturedAndReraised(t *testing.T) {
	delivered.take()
	var line int

	assert.PanicsWithValue(t, "boom", func() {
		vars := Vars{}
		defer Guard(&fakeTB{TB: t, name: "TestExplode"}, vars)
		vars["count"] = 3
		_, _, line, _ = runtime.Caller(0)
		panic("boom")
	})

	recs := delivered.take()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "TestExplode", rec.TestName)
	assert.Equal(t, line+1, rec.LineNumber)
	assert.Equal(t, "boom", rec.ErrorMessage)
	assert.Equal(t, map[string]string{"count": "3"}, rec.Locals)
	assert.Equal(t, filepath.Clean(thisFile(t)), rec.FilePath)
	assert.Contains(t, rec.Traceback, "panic: boom")
}

func TestGuard_RuntimeError(t *testing.T) {
	delivered.take()

	assert.Panics(t, func() {
		defer Guard(&fakeTB{TB: t, name: "TestIndex"}, nil)
		var s []int
		_ = s[3]
	})

	recs := delivered.take()
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].ErrorMessage, "index out of range")
	assert.Empty(t, recs[0].Locals)
}

func TestGuard_FailedTestIsCaptured(t *testing.T) {
	delivered.take()
	tb := &fakeTB{TB: t, name: "TestMarked"}

	_, _, line, _ := runtime.Caller(0)
	func() {
		defer Guard(tb, Vars{"err": errors.New("nope")})
		tb.failed = true
		_ = tb.Name()
	}()

	recs := delivered.take()
	require.Len(t, recs, 1)
	assert.Equal(t, "TestMarked failed", recs[0].ErrorMessage)
	assert.Equal(t, map[string]string{"err": "nope"}, recs[0].Locals)
	// t.Error then return leaves no failing frame; the definition line is used.
	assert.Equal(t, line+1, recs[0].LineNumber)
	assert.Equal(t, filepath.Clean(thisFile(t)), recs[0].FilePath)
	assert.NotContains(t, recs[0].Traceback, "capture_test.go")
}

func TestGuard_FailNowReportsFailingLine(t *testing.T) {
	delivered.take()
	var line int

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Guard(&fakeTB{TB: t, name: "TestFatal", failed: true}, nil)
		_, _, line, _ = runtime.Caller(0)
		runtime.Goexit()
	}()
	<-done

	recs := delivered.take()
	require.Len(t, recs, 1)
	assert.Equal(t, "TestFatal failed", recs[0].ErrorMessage)
	assert.Equal(t, line+1, recs[0].LineNumber)
	assert.Contains(t, recs[0].Traceback, "capture_test.go")
}

func TestInvocation_WithoutFrames(t *testing.T) {
	inv := invocation("TestX", nil, nil, nil)
	assert.True(t, inv.Failed())
	assert.Empty(t, inv.File)
	assert.Zero(t, inv.DefLine)
	assert.Nil(t, inv.Err.Locals)
}

func TestInvocation_DefinitionLine(t *testing.T) {
	frames, goexit := callers(1)
	assert.False(t, goexit)
	require.NotEmpty(t, frames)
	inv := invocation("TestInvocation_DefinitionLine", nil, nil, frames)

	_, _, here, _ := runtime.Caller(0)
	assert.Greater(t, here, inv.DefLine)
	assert.Positive(t, inv.DefLine)
	assert.Equal(t, "github.com/fyrsmithlabs/failtrack/pkg/capture", inv.Package)
}

func TestPackageOf(t *testing.T) {
	tests := []struct {
		fn   string
		want string
	}{
		{"example.com/a/b.TestX", "example.com/a/b"},
		{"example.com/a/b.TestX.func1", "example.com/a/b"},
		{"main.main", "main"},
		{"noqualifier", "noqualifier"},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			assert.Equal(t, tt.want, packageOf(tt.fn))
		})
	}
}
