// Package servicetest provides an in-memory stand-in for the failure
// tracking service.
//
// It implements every route the client and the delivery path use, keeps
// state in memory, and can be told to fail specific routes.
package servicetest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

// Principles are the nine debugging principles the service tracks.
var Principles = [v1.TotalPrinciples]v1.Principle{
	{Number: 1, Name: "Understand the System", Description: "Read the code and documentation around the failure before changing anything."},
	{Number: 2, Name: "Make It Fail", Description: "Reproduce the failure reliably."},
	{Number: 3, Name: "Quit Thinking and Look", Description: "Observe the actual behavior instead of guessing."},
	{Number: 4, Name: "Divide and Conquer", Description: "Narrow the search space until the fault is isolated."},
	{Number: 5, Name: "Change One Thing at a Time", Description: "Isolate the effect of each change."},
	{Number: 6, Name: "Keep an Audit Trail", Description: "Record what was tried and what happened."},
	{Number: 7, Name: "Check the Plug", Description: "Question the obvious assumptions."},
	{Number: 8, Name: "Get a Fresh View", Description: "Explain the problem to someone else."},
	{Number: 9, Name: "If You Didn't Fix It, It Ain't Fixed", Description: "Verify the fix removes the failure."},
}

// DocTopics are the topics served by GET /api/docs.
var DocTopics = map[string]v1.DocsResponse{
	"principles": {Topic: "principles", Description: "The nine debugging principles", Docs: principlesDoc()},
	"api":        {Topic: "api", Description: "HTTP API reference", Docs: "POST /api/failures\nGET /api/failures\nGET /api/failures/{id}\nPOST /api/debug\nGET /api/analytics\nGET /api/prompt\nGET /api/docs"},
	"analytics":  {Topic: "analytics", Description: "Failure grouping and triage", Docs: "Failures can be grouped by error_type, file_path or pattern."},
}

func principlesDoc() string {
	var b strings.Builder
	for _, p := range Principles {
		fmt.Fprintf(&b, "%d. %s: %s\n", p.Number, p.Name, p.Description)
	}
	return b.String()
}

// Request is a request observed by the service.
type Request struct {
	Method         string
	Path           string
	Query          string
	IdempotencyKey string
}

type forced struct {
	status int
	body   any
}

type failure struct {
	record    v1.FailureRecord
	id        string
	created   time.Time
	status    string
	completed map[int]string
}

// Service is the fake. The zero value is not usable; call New.
type Service struct {
	echo *echo.Echo

	mu        sync.Mutex
	sessionID string
	failures  map[string]*failure
	order     []string
	byKey     map[string]string // idempotency key → failure id
	forced    map[string]forced // "METHOD /path" → response
	requests  []Request
}

// New creates an empty service.
func New() *Service {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Service{
		echo:      e,
		sessionID: "s1",
		failures:  make(map[string]*failure),
		byKey:     make(map[string]string),
		forced:    make(map[string]forced),
	}
	e.Use(s.record, s.override)
	s.registerRoutes()
	return s
}

// Start serves s on a loopback listener until the test ends and returns the
// base URL.
func (s *Service) Start(tb testing.TB) string {
	tb.Helper()
	srv := httptest.NewServer(s)
	tb.Cleanup(srv.Close)
	return srv.URL
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Force makes every request to method and path answer with status and body.
// A nil body sends no content.
func (s *Service) Force(method, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[method+" "+path] = forced{status: status, body: body}
}

// Requests returns the requests observed so far.
func (s *Service) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Failure returns a stored record by id.
func (s *Service) Failure(id string) (v1.FailureRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[id]
	if !ok {
		return v1.FailureRecord{}, false
	}
	return f.record, true
}

// Resolve marks a failure as resolved.
func (s *Service) Resolve(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.failures[id]; ok {
		f.status = "resolved"
	}
}

func (s *Service) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:         r.Method,
			Path:           r.URL.Path,
			Query:          r.URL.RawQuery,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Service) override(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		s.mu.Lock()
		f, ok := s.forced[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if !ok {
			return next(c)
		}
		if f.body == nil {
			return c.NoContent(f.status)
		}
		if text, isText := f.body.(string); isText {
			return c.String(f.status, text)
		}
		return c.JSON(f.status, f.body)
	}
}

func (s *Service) registerRoutes() {
	s.echo.POST("/api/failures", s.handleRegister)
	s.echo.POST("/mcp/failures", s.handleRegister)
	s.echo.GET("/api/failures", s.handleList)
	s.echo.GET("/api/failures/:id", s.handleInfo)
	s.echo.POST("/api/debug", s.handleDebug)
	s.echo.GET("/api/analytics", s.handleAnalytics)
	s.echo.GET("/api/prompt", s.handlePrompt)
	s.echo.GET("/api/docs", s.handleDocs)
}
