// Package capture reports failing tests to the failure-tracking service from
// inside the test binary.
//
// Defer Guard at the top of a test:
//
//	func TestLogin(t *testing.T) {
//		vars := capture.Vars{}
//		defer capture.Guard(t, vars)
//
//		user := lookup("alice")
//		vars["user"] = user
//		...
//	}
//
// When the test panics or is marked failed, Guard builds a failure record
// from the runtime stack and the recorded Vars and delivers it through the
// process-wide capture hook. A panic is re-raised after capture so the
// test's outcome is unchanged. Panics and t.Fatal report the failing line;
// a test that called t.Error and returned reports its declaration line.
//
// If no hook has been registered, the first failure registers one built from
// the failtrack configuration (see internal/config).
package capture

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/failtrack/internal/config"
	"github.com/fyrsmithlabs/failtrack/internal/extract"
	"github.com/fyrsmithlabs/failtrack/internal/hooks"
	"github.com/fyrsmithlabs/failtrack/internal/redact"
)

// Vars are the variables recorded as the failing frame's locals. The map is
// read when the test ends, so entries added after the defer are included.
type Vars map[string]any

// maxFrames bounds the stack walk.
const maxFrames = 64

// Guard captures the outcome of the enclosing test. It must be deferred
// directly so that it can recover a panic.
func Guard(t testing.TB, vars Vars) {
	r := recover()
	if r == nil && !t.Failed() {
		return
	}
	report(t, r, vars)
	if r != nil {
		panic(r)
	}
}

func report(t testing.TB, r any, vars Vars) {
	defer func() { _ = recover() }()

	h := hook()
	if h == nil {
		return
	}
	frames, goexit := callers(2)
	inv := invocation(t.Name(), r, vars, frames)
	if r == nil && !goexit {
		// The test returned normally after t.Error; the stack only shows
		// where the deferred Guard ran, not the failing statement.
		inv.Err.Frames = nil
	}
	h.OnOutcome(context.Background(), inv)
}

var fallback sync.Once

// hook returns the registered hook, registering one from configuration on
// first use.
func hook() *hooks.Hook {
	if h := hooks.Registered(); h != nil {
		return h
	}
	fallback.Do(func() {
		cfg, err := config.Load(config.Options{})
		if err != nil {
			cfg = config.Default()
		}
		h, err := hooks.FromConfig(cfg, hooks.Deps{Out: os.Stdout})
		if err != nil {
			return
		}
		h.Register()
	})
	return hooks.Registered()
}

// callers returns the test's stack, outermost first, without runtime and
// testing frames, ending at the innermost frame in a _test.go file. goexit
// reports whether the stack is unwinding through runtime.Goexit, as it does
// after t.FailNow.
func callers(skip int) (frames []runtime.Frame, goexit bool) {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	it := runtime.CallersFrames(pcs[:n])

	for {
		f, more := it.Next()
		if f.Function == "runtime.Goexit" {
			goexit = true
		}
		if !internal(f) {
			frames = append(frames, f)
		}
		if !more {
			break
		}
	}
	// Reverse to outermost first.
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	for i := len(frames) - 1; i >= 0; i-- {
		if strings.HasSuffix(frames[i].File, "_test.go") {
			return frames[:i+1], goexit
		}
	}
	return frames, goexit
}

func internal(f runtime.Frame) bool {
	return strings.HasPrefix(f.Function, "runtime.") ||
		strings.HasPrefix(f.Function, "testing.") ||
		strings.HasSuffix(f.File, "/pkg/capture/capture.go")
}

func invocation(name string, r any, vars Vars, frames []runtime.Frame) extract.TestInvocation {
	inv := extract.TestInvocation{
		TestName: name,
		Phase:    extract.PhaseCall,
		Err: &extract.Exception{
			TypeName: "test failure",
			Message:  name + " failed",
		},
	}
	if r != nil {
		inv.Err.TypeName = "panic"
		inv.Err.Message = redact.Encode(r).String()
		if err, ok := r.(runtime.Error); ok {
			inv.Err.TypeName = "runtime error"
			inv.Err.Message = strings.TrimPrefix(err.Error(), "runtime error: ")
		}
	}
	if vars != nil {
		inv.Err.Locals = func() map[string]any { return vars }
	}

	for _, f := range frames {
		inv.Err.Frames = append(inv.Err.Frames, extract.Frame{
			Function: f.Function,
			File:     f.File,
			Line:     f.Line,
		})
	}
	if len(frames) > 0 {
		site := frames[len(frames)-1]
		inv.File = site.File
		inv.Package = packageOf(site.Function)
		if site.Func != nil {
			_, inv.DefLine = site.Func.FileLine(site.Entry)
		}
	}
	return inv
}

// packageOf returns the import path of a qualified function name such as
// "example.com/a/b.TestX.func1".
func packageOf(fn string) string {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return fn
	}
	return fn[:slash+1+dot]
}
