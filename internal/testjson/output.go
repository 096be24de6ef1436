package testjson

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/failtrack/internal/extract"
)

var (
	// "    x_test.go:12: message"
	failureLineRe = regexp.MustCompile(`^\s+([\w.\-]+\.go):(\d+): ?(.*)$`)
	// "panic: message [recovered]"
	panicRe = regexp.MustCompile(`^\s*panic: (.*?)(?: \[recovered\])?$`)
	// "\t/abs/path/file.go:42 +0x1d"
	traceFileRe = regexp.MustCompile(`^\t(\S+\.go):(\d+)(?: \+0x[0-9a-f]+)?$`)
	// "pkg.TestX(0xc000123)" or "pkg.TestX.func1(...)"
	traceFuncRe = regexp.MustCompile(`^(\S+)\(.*\)$`)
	// "--- FAIL: TestX (0.00s)"
	statusRe = regexp.MustCompile(`^\s*--- (?:FAIL|PASS|SKIP): `)
)

// failureOutput is what could be recovered from a failed test's output.
type failureOutput struct {
	panicked bool
	messages []string
	frames   []extract.Frame // outermost first
}

// parseOutput extracts failure messages and frames from a test's output.
// dir resolves the bare file names of t.Error lines; it may be empty.
func parseOutput(test, dir string, lines []string) failureOutput {
	var out failureOutput
	var trace []extract.Frame // innermost first, as printed
	pendingFunc := ""
	inMessage := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r\n")

		if m := panicRe.FindStringSubmatch(line); m != nil && !strings.HasPrefix(line, "\t") {
			if !out.panicked {
				out.messages = append(out.messages, "panic: "+m[1])
			}
			out.panicked = true
			inMessage = false
			continue
		}
		if out.panicked {
			if m := traceFileRe.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[2])
				trace = append(trace, extract.Frame{Function: pendingFunc, File: m[1], Line: n})
				pendingFunc = ""
				continue
			}
			if m := traceFuncRe.FindStringSubmatch(line); m != nil {
				pendingFunc = m[1]
			}
			continue
		}

		if m := failureLineRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			file := m[1]
			if dir != "" {
				file = filepath.Join(dir, file)
			}
			out.frames = append(out.frames, extract.Frame{Function: test, File: file, Line: n})
			out.messages = append(out.messages, m[3])
			inMessage = true
			continue
		}
		if statusRe.MatchString(line) || strings.HasPrefix(line, "=== ") {
			inMessage = false
			continue
		}
		// Indented continuation of a multi-line t.Error message.
		if inMessage && strings.HasPrefix(line, "        ") {
			last := len(out.messages) - 1
			out.messages[last] += "\n" + strings.TrimSpace(line)
		}
	}

	if out.panicked && len(trace) > 0 {
		out.frames = panicFrames(trace, dir)
	}
	return out
}

// panicFrames reverses a goroutine trace to outermost-first order and cuts it
// at the innermost frame in a _test.go file, preferring files in dir.
func panicFrames(trace []extract.Frame, dir string) []extract.Frame {
	frames := make([]extract.Frame, len(trace))
	for i, f := range trace {
		frames[len(trace)-1-i] = f
	}

	site := -1
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if !strings.HasSuffix(f.File, "_test.go") {
			continue
		}
		if dir == "" || filepath.Dir(f.File) == filepath.Clean(dir) {
			site = i
			break
		}
		if site < 0 {
			site = i
		}
	}
	if site < 0 {
		return frames
	}
	return frames[:site+1]
}

func (o failureOutput) exception() *extract.Exception {
	exc := &extract.Exception{
		TypeName: "test failure",
		Message:  strings.Join(o.messages, "\n"),
		Frames:   o.frames,
	}
	if o.panicked {
		exc.TypeName = "panic"
	}
	if exc.Message == "" {
		exc.Message = "test failed"
	}
	return exc
}
