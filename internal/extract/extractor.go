package extract

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/logging"
	"github.com/fyrsmithlabs/failtrack/internal/redact"
	"github.com/fyrsmithlabs/failtrack/internal/secrets"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

// Extractor turns a failed invocation into a FailureRecord.
//
// Each field is built independently: a fault while building one field
// leaves it at its fallback value and capture continues.
type Extractor struct {
	serializer *redact.Serializer
	scrubber   *secrets.Scrubber
	logger     *logging.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithScrubber redacts secrets from messages, tracebacks and locals.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(e *Extractor) { e.scrubber = s }
}

// WithLogger sets the logger used to report degraded fields.
func WithLogger(l *logging.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.serializer = redact.New(redact.WithScrubber(e.scrubber))
	return e
}

// Extract builds the record for inv. It returns false for invocations that
// did not fail in their call phase.
func (e *Extractor) Extract(inv TestInvocation) (*v1.FailureRecord, bool) {
	if !inv.Failed() {
		return nil, false
	}

	rec := &v1.FailureRecord{
		TestName:   inv.TestName,
		LineNumber: 1,
		Locals:     map[string]string{},
	}
	if rec.TestName == "" {
		rec.TestName = "unknown"
	}

	e.guard("line_number", func() { rec.LineNumber = failureLine(inv) })
	e.guard("file_path", func() { rec.FilePath = failureFile(inv) })
	e.guard("error_message", func() { rec.ErrorMessage = e.scrubber.Scrub(inv.Err.Message) })
	e.guard("traceback", func() { rec.Traceback = e.scrubber.Scrub(inv.Err.Traceback()) })
	e.guard("locals", func() {
		if inv.Err.Locals == nil {
			return
		}
		rec.Locals = e.serializer.Locals(inv.Err.Locals())
	})
	return rec, true
}

func (e *Extractor) guard(field string, build func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn(context.Background(), "degraded failure field",
				zap.String("field", field),
				zap.Any("panic", r),
			)
		}
	}()
	build()
}

// failureLine is the line of the innermost frame, else the definition line,
// else 1.
func failureLine(inv TestInvocation) int {
	if n := len(inv.Err.Frames); n > 0 && inv.Err.Frames[n-1].Line > 0 {
		return inv.Err.Frames[n-1].Line
	}
	if inv.DefLine > 0 {
		return inv.DefLine
	}
	return 1
}

func failureFile(inv TestInvocation) string {
	file := inv.File
	if file == "" {
		if n := len(inv.Err.Frames); n > 0 {
			file = inv.Err.Frames[n-1].File
		}
	}
	if file == "" {
		return ""
	}
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return file
}
