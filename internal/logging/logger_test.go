package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/failtrack/internal/config"
)

func newJSONLogger(t *testing.T, buf *bytes.Buffer) *Logger {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Level = zapcore.DebugLevel
	l, err := NewLoggerTo(cfg, buf, nil)
	require.NoError(t, err)
	return l
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)

	cfg = NewDefaultConfig()
	cfg.Output.Stderr = false
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(t, &buf)

	ctx := WithTestName(context.Background(), "TestLogin")
	ctx = WithFailureID(ctx, "f1")
	ctx = WithRunID(ctx, "run-1")
	l.Info(ctx, "registered")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "registered", lines[0]["msg"])
	assert.Equal(t, "TestLogin", lines[0]["test.name"])
	assert.Equal(t, "f1", lines[0]["failure.id"])
	assert.Equal(t, "run-1", lines[0]["run.id"])
	assert.Equal(t, "failtrack", lines[0]["service"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	l, err := NewLoggerTo(cfg, &buf, nil)
	require.NoError(t, err)

	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestRedactingEncoder_RedactsFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(t, &buf)

	l.Warn(context.Background(), "request",
		zap.String("authorization", "Bearer abc123"),
		zap.String("header", "bearer xyz"),
		zap.String("endpoint", "http://localhost:3000/api/failures"),
		Secret("api_token", config.Secret("hunter2")),
	)

	out := buf.String()
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "xyz")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "http://localhost:3000/api/failures")
}

func TestRedactingEncoder_RedactsWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(t, &buf).With(zap.String("password", "pw"))
	l.Warn(context.Background(), "child")
	assert.NotContains(t, buf.String(), `"pw"`)
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "via context")
	tl.AssertLogged(t, zapcore.WarnLevel, "via context")
}

func TestTestLogger_AssertField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "delivered", zap.String("endpoint", "A"))
	tl.AssertLogged(t, zapcore.InfoLevel, "delivered")
	tl.AssertField(t, "delivered", "endpoint", "A")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "delivered")

	assert.Len(t, tl.Take(), 1)
	assert.Empty(t, tl.Entries(""))
}

type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(_ context.Context, recs []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range recs {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func TestNewLoggerTo_OTELOutput(t *testing.T) {
	exp := &memoryExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Output.OTEL = true
	var buf bytes.Buffer
	l, err := NewLoggerTo(cfg, &buf, lp)
	require.NoError(t, err)

	l.Warn(context.Background(), "delivery attempt failed", zap.String("endpoint", "http://a"))

	assert.Contains(t, buf.String(), "delivery attempt failed")
	exp.mu.Lock()
	defer exp.mu.Unlock()
	require.Len(t, exp.records, 1)
	assert.Equal(t, "delivery attempt failed", exp.records[0].Body().AsString())
}

func TestNewLoggerTo_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stderr = false
	cfg.Output.OTEL = true
	_, err := NewLoggerTo(cfg, &bytes.Buffer{}, nil)
	assert.Error(t, err)
}
