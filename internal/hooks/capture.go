package hooks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/delivery"
	"github.com/fyrsmithlabs/failtrack/internal/extract"
	"github.com/fyrsmithlabs/failtrack/internal/logging"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

// Deliverer sends a failure record to the tracking service.
type Deliverer interface {
	Deliver(ctx context.Context, rec *v1.FailureRecord) delivery.Result
}

// Hook runs the capture pipeline for each test outcome.
type Hook struct {
	extractor *extract.Extractor
	deliverer Deliverer
	manager   *HookManager
	out       io.Writer
	logger    *logging.Logger

	startOnce sync.Once
	captured  atomic.Int64
	delivered atomic.Int64
	faults    atomic.Int64
}

// Option configures a Hook.
type Option func(*Hook)

// WithOutput sets where the registration banner is written.
func WithOutput(w io.Writer) Option {
	return func(h *Hook) { h.out = w }
}

// WithLogger sets the hook's logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hook) { h.logger = l }
}

// WithManager dispatches lifecycle events through m.
func WithManager(m *HookManager) Option {
	return func(h *Hook) { h.manager = m }
}

// New creates a Hook.
func New(extractor *extract.Extractor, deliverer Deliverer, opts ...Option) *Hook {
	h := &Hook{
		extractor: extractor,
		deliverer: deliverer,
		manager:   NewHookManager(),
		out:       io.Discard,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.out == nil {
		h.out = io.Discard
	}
	return h
}

var (
	registerOnce sync.Once
	registered   atomic.Pointer[Hook]
)

// Register installs h as the process-wide hook. Only the first call has an
// effect; every call returns the installed hook.
func (h *Hook) Register() *Hook {
	registerOnce.Do(func() { registered.Store(h) })
	return registered.Load()
}

// Registered returns the process-wide hook, or nil.
func Registered() *Hook {
	return registered.Load()
}

// Manager returns the lifecycle event manager.
func (h *Hook) Manager() *HookManager {
	return h.manager
}

// Start announces the run and fires run_start. Only the first call has an
// effect.
func (h *Hook) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		fmt.Fprintln(h.out, "Starting test session with failure tracking")
		h.fire(ctx, HookRunStart, map[string]any{})
	})
}

// End fires run_end with the run's counters merged into data.
func (h *Hook) End(ctx context.Context, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["captured"] = h.captured.Load()
	data["delivered"] = h.delivered.Load()
	data["faults"] = h.faults.Load()
	h.fire(ctx, HookRunEnd, data)
}

// OnOutcome captures and delivers inv if it failed in its call phase. It
// reports whether a record was delivered and never panics.
func (h *Hook) OnOutcome(ctx context.Context, inv extract.TestInvocation) (res delivery.Result) {
	defer func() {
		if r := recover(); r != nil {
			h.faults.Add(1)
			h.logger.Error(ctx, "capture pipeline panicked",
				zap.String("test", inv.TestName),
				zap.Any("panic", r),
			)
		}
	}()

	if !inv.Failed() {
		return res
	}
	ctx = logging.WithTestName(ctx, inv.TestName)

	rec, ok := h.extractor.Extract(inv)
	if !ok {
		return res
	}
	h.captured.Add(1)
	h.banner(rec)

	res = h.deliverer.Deliver(ctx, rec)
	if res.Delivered {
		h.delivered.Add(1)
		ctx = logging.WithFailureID(ctx, res.FailureID)
	}
	h.fire(ctx, HookTestFailure, map[string]any{
		"record": rec,
		"result": res,
	})
	return res
}

// Stats returns how many failures were captured and delivered and how many
// pipeline faults were contained.
func (h *Hook) Stats() (captured, delivered, faults int64) {
	return h.captured.Load(), h.delivered.Load(), h.faults.Load()
}

func (h *Hook) banner(rec *v1.FailureRecord) {
	fmt.Fprintln(h.out, "\n===== Test Failure Registration =====")
	fmt.Fprintf(h.out, "Test: %s\n", rec.TestName)
	fmt.Fprintf(h.out, "File: %s\n", rec.FilePath)
	fmt.Fprintf(h.out, "Line: %d\n", rec.LineNumber)
	fmt.Fprintf(h.out, "Error: %s\n", rec.ErrorMessage)
}

func (h *Hook) fire(ctx context.Context, hookType HookType, data map[string]any) {
	if h.manager == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.faults.Add(1)
			h.logger.Error(ctx, "hook handler panicked", zap.String("hook", string(hookType)), zap.Any("panic", r))
		}
	}()
	if err := h.manager.Execute(ctx, hookType, data); err != nil {
		h.faults.Add(1)
		h.logger.Warn(ctx, "hook handler failed", zap.Error(err))
	}
}
