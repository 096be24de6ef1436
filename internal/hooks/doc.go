// Package hooks connects the host test runner to the capture pipeline.
//
// A Hook is registered once per process. Every test outcome is passed to
// OnOutcome, which extracts a failure record, delivers it, and fires the
// test_failure lifecycle event. Faults inside the pipeline are logged and
// counted, never returned to the caller. Lifecycle events (run_start,
// test_failure, run_end) are dispatched through a HookManager so callers
// can attach their own handlers.
package hooks
