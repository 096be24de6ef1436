// Package delivery posts failure records to the tracking service, trying
// each configured endpoint in order until one accepts.
//
// Delivery is best effort. Deliver never returns an error and never panics;
// the outcome of every attempt is reported in the Result and printed as a
// progress line.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/logging"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

const (
	// DefaultTimeout bounds each attempt.
	DefaultTimeout = 5 * time.Second

	// IdempotencyHeader carries the per-record key sent with every attempt.
	IdempotencyHeader = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

const instrumentationName = "github.com/fyrsmithlabs/failtrack/internal/delivery"

// Attempt is the outcome of posting to one endpoint.
type Attempt struct {
	Endpoint   string
	Outcome    string
	StatusCode int
	Body       string
	Err        error
	Duration   time.Duration
}

// Result is the outcome of delivering one record.
type Result struct {
	Delivered      bool
	Endpoint       string
	FailureID      string
	SessionID      string
	IdempotencyKey string
	Attempts       []Attempt
}

// Client delivers failure records. The endpoint list is read-only after New.
type Client struct {
	endpoints []string
	http      *http.Client
	timeout   time.Duration
	out       io.Writer
	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	newKey    func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each attempt. Zero or negative keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOutput sets where progress lines are written. Nil discards them.
func WithOutput(w io.Writer) Option {
	return func(c *Client) { c.out = w }
}

// WithLogger sets the client's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer used for delivery spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMetrics records attempts in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for the given endpoints, tried in order.
func New(endpoints []string, opts ...Option) *Client {
	c := &Client{
		endpoints: append([]string(nil), endpoints...),
		http:      &http.Client{},
		timeout:   DefaultTimeout,
		out:       io.Discard,
		logger:    logging.NewNop(),
		newKey:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.out == nil {
		c.out = io.Discard
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	return c
}

// Endpoints returns a copy of the configured endpoints.
func (c *Client) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

// Deliver posts rec to each endpoint in order and stops at the first 200.
func (c *Client) Deliver(ctx context.Context, rec *v1.FailureRecord) (res Result) {
	if rec == nil {
		return res
	}
	ctx, span := c.tracer.Start(ctx, "delivery.Deliver", trace.WithAttributes(
		attribute.String("test.name", rec.TestName),
		attribute.Int("delivery.endpoints", len(c.endpoints)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res.Delivered = false
			c.logger.Error(ctx, "delivery panicked", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
		}
		c.recordResult(res.Delivered)
	}()

	res.IdempotencyKey = c.newKey()
	body, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error(ctx, "encoding failure record", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return res
	}

	for _, endpoint := range c.endpoints {
		a, reg := c.attempt(ctx, endpoint, body, res.IdempotencyKey)
		res.Attempts = append(res.Attempts, a)
		c.report(a, reg)
		if a.Outcome == OutcomeDelivered {
			res.Delivered = true
			res.Endpoint = endpoint
			res.FailureID = reg.FailureID
			res.SessionID = reg.SessionID
			span.SetAttributes(attribute.String("delivery.endpoint", endpoint))
			return res
		}
	}

	fmt.Fprintln(c.out, "⚠️ Could not register failure with any endpoint")
	span.SetStatus(codes.Error, "undelivered")
	return res
}

func (c *Client) attempt(ctx context.Context, endpoint string, body []byte, key string) (a Attempt, reg v1.RegisterResponse) {
	a.Endpoint = endpoint
	ctx, span := c.tracer.Start(ctx, "delivery.attempt", trace.WithAttributes(
		attribute.String("http.url", endpoint),
	))
	start := time.Now()
	defer func() {
		a.Duration = time.Since(start)
		span.SetAttributes(attribute.String("delivery.outcome", a.Outcome))
		if a.Err != nil {
			span.RecordError(a.Err)
			span.SetStatus(codes.Error, a.Outcome)
		}
		span.End()
		c.recordAttempt(a)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		a.Outcome, a.Err = OutcomeTransport, err
		return a, reg
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)

	resp, err := c.http.Do(req)
	if err != nil {
		a.Outcome, a.Err = OutcomeTransport, err
		return a, reg
	}
	defer resp.Body.Close()

	a.StatusCode = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		a.Outcome, a.Err = OutcomeTransport, fmt.Errorf("reading response: %w", err)
		return a, reg
	}
	a.Body = string(data)

	if resp.StatusCode != http.StatusOK {
		a.Outcome = OutcomeStatus
		a.Err = fmt.Errorf("server returned status %d", resp.StatusCode)
		return a, reg
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		a.Outcome, a.Err = OutcomeDecode, fmt.Errorf("decoding response: %w", err)
		return a, reg
	}
	a.Outcome = OutcomeDelivered
	return a, reg
}

func (c *Client) report(a Attempt, reg v1.RegisterResponse) {
	switch a.Outcome {
	case OutcomeDelivered:
		fmt.Fprintf(c.out, "✅ Failure registered with failure tracker at %s\n", a.Endpoint)
		fmt.Fprintf(c.out, "🔍 Failure ID: %s\n", reg.FailureID)
		fmt.Fprintf(c.out, "🔍 Session ID: %s\n", reg.SessionID)
		c.logger.Info(context.Background(), "failure delivered",
			zap.String("endpoint", a.Endpoint),
			zap.String("failure_id", reg.FailureID),
			zap.Duration("duration", a.Duration),
		)
	case OutcomeStatus:
		fmt.Fprintf(c.out, "❌ Failed to register failure at %s: %d\n", a.Endpoint, a.StatusCode)
		fmt.Fprintf(c.out, "Response: %s\n", a.Body)
		c.logger.Warn(context.Background(), "delivery rejected",
			zap.String("endpoint", a.Endpoint),
			zap.Int("status", a.StatusCode),
		)
	default:
		fmt.Fprintf(c.out, "❌ Error connecting to failure tracker at %s: %v\n", a.Endpoint, a.Err)
		c.logger.Warn(context.Background(), "delivery attempt failed",
			zap.String("endpoint", a.Endpoint),
			zap.String("outcome", a.Outcome),
			zap.Error(a.Err),
			zap.Bool("timeout", errors.Is(a.Err, context.DeadlineExceeded)),
		)
	}
}

func (c *Client) recordAttempt(a Attempt) {
	if c.metrics == nil {
		return
	}
	c.metrics.AttemptsTotal.WithLabelValues(a.Endpoint, a.Outcome).Inc()
	c.metrics.AttemptDuration.WithLabelValues(a.Outcome).Observe(a.Duration.Seconds())
}

func (c *Client) recordResult(delivered bool) {
	if c.metrics == nil {
		return
	}
	result := "undelivered"
	if delivered {
		result = "delivered"
	}
	c.metrics.RecordsTotal.WithLabelValues(result).Inc()
}
