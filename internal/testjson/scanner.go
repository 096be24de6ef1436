package testjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/extract"
	"github.com/fyrsmithlabs/failtrack/internal/logging"
)

// maxLinesPerTest bounds the output kept for a single test.
const maxLinesPerTest = 2000

// Handler receives every reportable failure, synchronously and in stream order.
type Handler func(ctx context.Context, inv extract.TestInvocation)

// Scanner reads a test2json stream.
type Scanner struct {
	resolver *Resolver
	echo     io.Writer
	logger   *logging.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithResolver resolves packages to source directories for file and
// definition-line lookup.
func WithResolver(r *Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithEcho writes the test output carried by the stream to w.
func WithEcho(w io.Writer) Option {
	return func(s *Scanner) { s.echo = w }
}

// WithLogger sets the scanner's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner creates a Scanner.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type testKey struct {
	pkg  string
	test string
}

type scanState struct {
	output      map[testKey][]string
	failedChild map[testKey]bool
	summary     Summary
}

// Scan consumes r until EOF and calls handle for each failed leaf test.
// Lines that are not JSON events are echoed and otherwise ignored.
func (s *Scanner) Scan(ctx context.Context, r io.Reader, handle Handler) (Summary, error) {
	st := &scanState{
		output:      make(map[testKey][]string),
		failedChild: make(map[testKey]bool),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st.summary, err
		}
		line := sc.Bytes()
		var ev Event
		if len(line) == 0 || line[0] != '{' || json.Unmarshal(line, &ev) != nil {
			s.write(string(line) + "\n")
			continue
		}
		s.write(ev.Output)
		s.handle(ctx, st, ev, handle)
	}
	if err := sc.Err(); err != nil {
		return st.summary, fmt.Errorf("reading test stream: %w", err)
	}
	return st.summary, nil
}

func (s *Scanner) handle(ctx context.Context, st *scanState, ev Event, handle Handler) {
	key := testKey{pkg: ev.Package, test: ev.Test}

	switch ev.Action {
	case ActionOutput:
		if ev.Test == "" {
			return
		}
		if lines := st.output[key]; len(lines) < maxLinesPerTest {
			st.output[key] = append(lines, ev.Output)
		}
	case ActionPass:
		if ev.Test != "" {
			st.summary.Passed++
		}
		st.forget(key)
	case ActionSkip:
		if ev.Test != "" {
			st.summary.Skipped++
		}
		st.forget(key)
	case ActionBuildFail:
		st.summary.PackageFailures++
	case ActionFail:
		if ev.Test == "" {
			st.summary.PackageFailures++
			s.logger.Debug(ctx, "package failed outside a test", zap.String("package", ev.Package))
			return
		}
		st.summary.Failed++
		for p := parentOf(ev.Test); p != ""; p = parentOf(p) {
			st.failedChild[testKey{pkg: ev.Package, test: p}] = true
		}
		if st.failedChild[key] {
			st.forget(key)
			return
		}
		inv := s.invocation(ev, st.output[key])
		st.forget(key)
		st.summary.Reported++
		handle(ctx, inv)
	}
}

func (st *scanState) forget(key testKey) {
	delete(st.output, key)
	delete(st.failedChild, key)
}

func (s *Scanner) invocation(ev Event, lines []string) extract.TestInvocation {
	dir := s.resolver.Dir(ev.Package)
	file, defLine := "", 0
	if s.resolver != nil {
		file, defLine = s.resolver.Decl(ev.Package, ev.Test)
	}
	out := parseOutput(ev.Test, dir, lines)
	return extract.TestInvocation{
		TestName: ev.Test,
		Package:  ev.Package,
		File:     file,
		DefLine:  defLine,
		Phase:    extract.PhaseCall,
		Err:      out.exception(),
	}
}

func (s *Scanner) write(text string) {
	if s.echo == nil || text == "" {
		return
	}
	_, _ = io.WriteString(s.echo, text)
}
