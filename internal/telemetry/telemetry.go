package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the TracerProvider, the LoggerProvider and their shutdown.
type Telemetry struct {
	config         *Config
	tracerProvider *trace.TracerProvider
	loggerProvider *sdklog.LoggerProvider

	degraded atomic.Bool
	reason   atomic.Value // string
}

// New creates a Telemetry instance.
//
// A disabled config yields a no-op instance. Exporter creation errors do not
// fail: the instance is marked degraded and the affected signal falls back
// to no-op.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		t.setDegraded(err.Error())
		return t, nil
	}
	t.tracerProvider = newTracerProvider(exporter, cfg)
	otel.SetTracerProvider(t.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logExporter, err := newLogExporter(ctx, cfg)
	if err != nil {
		t.setDegraded(err.Error())
		return t, nil
	}
	t.loggerProvider = newLoggerProvider(logExporter, cfg)
	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope.
// Falls back to the global (no-op by default) provider when disabled.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// LoggerProvider returns the log provider for the otelzap bridge, or nil
// when log export is off.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.loggerProvider == nil {
		return nil
	}
	return t.loggerProvider
}

// Shutdown flushes and stops the providers. Uses the configured timeout if
// ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownAfter.Duration())
		defer cancel()
	}
	var errs []error
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
	}
	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Degraded reports whether initialization failed, and why.
func (t *Telemetry) Degraded() (bool, string) {
	if t == nil {
		return false, ""
	}
	reason, _ := t.reason.Load().(string)
	return t.degraded.Load(), reason
}

// IsEnabled returns true if telemetry is enabled and exporting.
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.config.Enabled && t.tracerProvider != nil
}

func (t *Telemetry) setDegraded(reason string) {
	t.reason.Store(reason)
	t.degraded.Store(true)
}
