// Package client is the debug session client for the failure-tracking
// service.
//
// Every method validates its request locally, issues exactly one HTTP
// request and returns either the decoded response or one of
// *TransportError, *StatusError or *APIError. Validation failures wrap the
// sentinel errors of pkg/api/v1 and never reach the network. There are no
// automatic retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/config"
	"github.com/fyrsmithlabs/failtrack/internal/logging"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/failtrack/pkg/client"
	maxResponseBytes    = 4 << 20
)

// Client talks to one failure-tracking service.
type Client struct {
	baseURL string
	http    *http.Client
	token   config.Secret
	timeout time.Duration
	tracer  trace.Tracer
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each call. Zero, the default, means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithToken sends token as a bearer credential.
func WithToken(token config.Secret) Option {
	return func(c *Client) { c.token = token }
}

// WithTracer sets the tracer used for call spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithLogger sets the client's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	return c
}

// FromConfig creates a client from the server section of cfg. Explicit
// options override it.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Server.Timeout.Duration()),
		WithToken(cfg.Server.APIToken),
	}
	return New(cfg.Server.URL, append(base, opts...)...)
}

// BaseURL returns the service's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register stores a failure record and returns its identifiers.
func (c *Client) Register(ctx context.Context, rec *v1.FailureRecord) (*v1.RegisterResponse, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: record is required", v1.ErrInvalidRequest)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	var resp v1.RegisterResponse
	if err := c.doJSON(ctx, "register", http.MethodPost, "/api/failures", nil, rec, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns a summary of every stored failure.
func (c *Client) List(ctx context.Context) (*v1.ListResponse, error) {
	var resp v1.ListResponse
	if err := c.doJSON(ctx, "list", http.MethodGet, "/api/failures", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetInfo returns one failure with its debugging state.
func (c *Client) GetInfo(ctx context.Context, failureID string) (*v1.FailureInfo, error) {
	if failureID == "" {
		return nil, v1.ErrFailureRequired
	}
	var resp v1.FailureInfo
	path := "/api/failures/" + url.PathEscape(failureID)
	if err := c.doJSON(ctx, "get_info", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Annotate records the analysis for one debugging principle.
func (c *Client) Annotate(ctx context.Context, a v1.DebugAnnotation) (*v1.AnnotateResponse, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var resp v1.AnnotateResponse
	if err := c.doJSON(ctx, "annotate", http.MethodPost, "/api/debug", nil, a, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Analyze groups stored failures.
func (c *Client) Analyze(ctx context.Context, q v1.AnalysisQuery) (*v1.AnalysisResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var resp v1.AnalysisResponse
	if err := c.doJSON(ctx, "analyze", http.MethodGet, "/api/analytics", q.Values(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GeneratePrompt asks the service for a debugging prompt about one group or
// one failure.
func (c *Client) GeneratePrompt(ctx context.Context, p v1.PromptRequest) (*v1.PromptResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var resp v1.PromptResponse
	if err := c.doJSON(ctx, "generate_prompt", http.MethodGet, "/api/prompt", p.Values(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDocs returns documentation for topic, or the general overview when
// topic is empty.
func (c *Client) GetDocs(ctx context.Context, topic string) (*v1.DocsResponse, error) {
	q := url.Values{}
	if topic != "" {
		q.Set("topic", topic)
	}
	var resp v1.DocsResponse
	if err := c.doJSON(ctx, "get_docs", http.MethodGet, "/api/docs", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProgressLine renders info's progress as "N/9 principles completed".
func ProgressLine(info *v1.FailureInfo) string {
	if info == nil {
		return fmt.Sprintf("0/%d principles completed", v1.TotalPrinciples)
	}
	return info.ProgressLine()
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, payload, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "client."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		c.logger.Trace(ctx, "request body", zap.String("op", op), zap.ByteString("body", b))
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.token.Value())
	}

	c.logger.Debug(ctx, "calling failure tracker", zap.String("op", op), zap.String("url", target))
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	c.logger.Trace(ctx, "response body", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var appErr v1.ErrorBody
	if json.Unmarshal(raw, &appErr) == nil && appErr.Error != "" {
		return &APIError{Op: op, Message: appErr.Error, AvailableTopics: appErr.AvailableTopics}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}
