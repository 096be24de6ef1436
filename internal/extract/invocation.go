// Package extract builds failure records from failed test invocations.
package extract

import (
	"fmt"
	"strings"
)

// Phase is the part of a test's lifecycle an outcome belongs to.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Frame is one entry of a traceback, innermost last.
type Frame struct {
	Function string
	File     string
	Line     int
}

// String renders the frame the way the Go runtime prints stack traces.
func (f Frame) String() string {
	fn := f.Function
	if fn == "" {
		fn = "???"
	}
	return fmt.Sprintf("%s(...)\n\t%s:%d", fn, f.File, f.Line)
}

// FrameLocals captures the variables visible in the failing frame. It may
// return nil when no capture facility is available.
type FrameLocals func() map[string]any

// Exception describes why a test invocation failed.
type Exception struct {
	TypeName string // "panic", "runtime.Error", "test failure", ...
	Message  string
	Frames   []Frame
	Locals   FrameLocals
}

// Traceback formats the exception chain as Go-style stack text.
func (e *Exception) Traceback() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.TypeName != "" {
		b.WriteString(e.TypeName)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Frames) == 0 {
		return b.String()
	}
	b.WriteString("\n\n")
	for i := len(e.Frames) - 1; i >= 0; i-- {
		b.WriteString(e.Frames[i].String())
		b.WriteByte('\n')
	}
	return b.String()
}

// TestInvocation is one completed test execution as seen by the host runner.
type TestInvocation struct {
	TestName string
	Package  string
	File     string // source file of the test function, may be empty
	DefLine  int    // line of the test function's declaration, 0 if unknown
	Phase    Phase
	Err      *Exception
}

// Failed reports whether the invocation raised during its call phase.
func (inv TestInvocation) Failed() bool {
	return inv.Phase == PhaseCall && inv.Err != nil
}
