// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if name := TestNameFromContext(ctx); name != "" {
		fields = append(fields, zap.String("test.name", name))
	}
	if id := FailureIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("failure.id", id))
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	return fields
}

type testNameCtxKey struct{}
type failureIDCtxKey struct{}
type runIDCtxKey struct{}
type loggerCtxKey struct{}

// WithTestName records the test a log line relates to.
func WithTestName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, testNameCtxKey{}, name)
}

// TestNameFromContext returns the test name, or "".
func TestNameFromContext(ctx context.Context) string {
	s, _ := ctx.Value(testNameCtxKey{}).(string)
	return s
}

// WithFailureID records the remote failure id a log line relates to.
func WithFailureID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, failureIDCtxKey{}, id)
}

// FailureIDFromContext returns the failure id, or "".
func FailureIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(failureIDCtxKey{}).(string)
	return s
}

// WithRunID records the capture run a log line belongs to.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runIDCtxKey{}).(string)
	return s
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
