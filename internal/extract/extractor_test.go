package extract

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/failtrack/internal/logging"
	"github.com/fyrsmithlabs/failtrack/internal/secrets"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

func failing(frames []Frame, locals FrameLocals) TestInvocation {
	return TestInvocation{
		TestName: "TestX",
		File:     "/src/pkg/x_test.go",
		DefLine:  7,
		Phase:    PhaseCall,
		Err: &Exception{
			TypeName: "test failure",
			Message:  "expected 1, got 2",
			Frames:   frames,
			Locals:   locals,
		},
	}
}

func TestExtract_LastFrameAndLocals(t *testing.T) {
	inv := failing(
		[]Frame{
			{Function: "pkg.helper", File: "/src/pkg/helper.go", Line: 3},
			{Function: "pkg.TestX", File: "/src/pkg/x_test.go", Line: 12},
		},
		func() map[string]any { return map[string]any{"x": 1} },
	)

	rec, ok := New().Extract(inv)
	require.True(t, ok)

	want := &v1.FailureRecord{
		TestName:     "TestX",
		FilePath:     "/src/pkg/x_test.go",
		LineNumber:   12,
		ErrorMessage: "expected 1, got 2",
		Locals:       map[string]string{"x": "1"},
	}
	if diff := cmp.Diff(want, rec, cmpIgnoreTraceback); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, rec.Traceback, "test failure: expected 1, got 2")
	assert.Contains(t, rec.Traceback, "pkg.TestX(...)\n\t/src/pkg/x_test.go:12")
	assert.Less(t, strings.Index(rec.Traceback, "pkg.TestX"), strings.Index(rec.Traceback, "pkg.helper"))
}

var cmpIgnoreTraceback = cmp.FilterPath(func(p cmp.Path) bool {
	return p.String() == "Traceback"
}, cmp.Ignore())

func TestExtract_EmptyTracebackFallsBackToDefLine(t *testing.T) {
	rec, ok := New().Extract(failing(nil, nil))
	require.True(t, ok)
	assert.Equal(t, 7, rec.LineNumber)
	assert.Empty(t, rec.Locals)
	assert.NotNil(t, rec.Locals)
	assert.Equal(t, "test failure: expected 1, got 2", rec.Traceback)
}

func TestExtract_NoDefLineKeepsPositiveLine(t *testing.T) {
	inv := failing(nil, nil)
	inv.DefLine = 0
	rec, ok := New().Extract(inv)
	require.True(t, ok)
	assert.Equal(t, 1, rec.LineNumber)
	assert.NoError(t, rec.Validate())
}

func TestExtract_IgnoresNonCallPhases(t *testing.T) {
	for _, phase := range []Phase{PhaseSetup, PhaseTeardown} {
		inv := failing(nil, nil)
		inv.Phase = phase
		_, ok := New().Extract(inv)
		assert.False(t, ok, phase)
	}

	inv := failing(nil, nil)
	inv.Err = nil
	_, ok := New().Extract(inv)
	assert.False(t, ok)
}

func TestExtract_FileFromFrameWhenUnknown(t *testing.T) {
	inv := failing([]Frame{{Function: "f", File: "rel/y_test.go", Line: 4}}, nil)
	inv.File = ""
	rec, ok := New().Extract(inv)
	require.True(t, ok)
	assert.True(t, filepath.IsAbs(rec.FilePath))
	assert.True(t, strings.HasSuffix(rec.FilePath, filepath.Join("rel", "y_test.go")))
}

func TestExtract_PanickingLocalsDegrade(t *testing.T) {
	tl := logging.NewTestLogger()
	inv := failing(
		[]Frame{{Function: "f", File: "/a_test.go", Line: 9}},
		func() map[string]any { panic("no frame access") },
	)

	rec, ok := New(WithLogger(tl.Logger)).Extract(inv)
	require.True(t, ok)
	assert.Equal(t, 9, rec.LineNumber)
	assert.Empty(t, rec.Locals)
	tl.AssertLogged(t, zapcore.WarnLevel, "degraded failure field")
	tl.AssertField(t, "degraded failure field", "field", "locals")
}

func TestExtract_ScrubsSecrets(t *testing.T) {
	inv := failing(nil, func() map[string]any {
		return map[string]any{"dsn": "postgres://u:pw123456@db/x"}
	})
	inv.Err.Message = "auth failed with token ghp_" + strings.Repeat("a", 36)

	rec, ok := New(WithScrubber(secrets.MustNew(nil))).Extract(inv)
	require.True(t, ok)
	assert.NotContains(t, rec.ErrorMessage, "ghp_")
	assert.NotContains(t, rec.Traceback, "ghp_")
	assert.Equal(t, "postgres://u:[REDACTED]@db/x", rec.Locals["dsn"])
}

func TestExtract_UnknownTestName(t *testing.T) {
	inv := failing(nil, nil)
	inv.TestName = ""
	rec, ok := New().Extract(inv)
	require.True(t, ok)
	assert.NoError(t, rec.Validate())
}
