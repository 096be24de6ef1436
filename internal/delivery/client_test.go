package delivery

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/failtrack/internal/servicetest"
	"github.com/fyrsmithlabs/failtrack/internal/telemetry"
	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleRecord() *v1.FailureRecord {
	return &v1.FailureRecord{
		TestName:     "test_x",
		FilePath:     "/src/x_test.go",
		LineNumber:   10,
		ErrorMessage: "AssertionError: boom",
		Locals:       map[string]string{},
	}
}

// unreachable returns a URL nothing listens on.
func unreachable(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url + "/api/failures"
}

func TestDeliver_FailsOverToSecondEndpoint(t *testing.T) {
	b := servicetest.New()
	c := servicetest.New()
	bURL := b.Start(t) + "/api/failures"
	cURL := c.Start(t) + "/api/failures"

	var out bytes.Buffer
	client := New([]string{unreachable(t), bURL, cURL}, WithOutput(&out))

	res := client.Deliver(context.Background(), sampleRecord())

	require.True(t, res.Delivered)
	assert.Equal(t, bURL, res.Endpoint)
	assert.Equal(t, "f1", res.FailureID)
	assert.Equal(t, "s1", res.SessionID)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, OutcomeTransport, res.Attempts[0].Outcome)
	assert.Equal(t, OutcomeDelivered, res.Attempts[1].Outcome)
	assert.Empty(t, c.Requests(), "third endpoint must not be attempted")

	assert.Contains(t, out.String(), "❌ Error connecting to failure tracker at")
	assert.Contains(t, out.String(), "✅ Failure registered with failure tracker at "+bURL)
	assert.Contains(t, out.String(), "🔍 Failure ID: f1")
	assert.NotContains(t, out.String(), "Could not register")

	rec, ok := b.Failure("f1")
	require.True(t, ok)
	assert.Equal(t, "test_x", rec.TestName)
}

func TestDeliver_AllUnreachable(t *testing.T) {
	var out bytes.Buffer
	client := New([]string{unreachable(t), unreachable(t)}, WithOutput(&out))

	res := client.Deliver(context.Background(), sampleRecord())

	assert.False(t, res.Delivered)
	assert.Empty(t, res.FailureID)
	assert.Len(t, res.Attempts, 2)
	assert.Contains(t, out.String(), "⚠️ Could not register failure with any endpoint")
}

func TestDeliver_NonOKStatusFailsOver(t *testing.T) {
	svc := servicetest.New()
	base := svc.Start(t)
	svc.Force(http.MethodPost, "/api/failures", http.StatusServiceUnavailable, "maintenance")

	var out bytes.Buffer
	client := New([]string{base + "/api/failures", base + "/mcp/failures"}, WithOutput(&out))
	res := client.Deliver(context.Background(), sampleRecord())

	require.True(t, res.Delivered)
	assert.Equal(t, base+"/mcp/failures", res.Endpoint)
	assert.Equal(t, OutcomeStatus, res.Attempts[0].Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, res.Attempts[0].StatusCode)
	assert.Equal(t, "maintenance", res.Attempts[0].Body)
	assert.Contains(t, out.String(), "❌ Failed to register failure at "+base+"/api/failures: 503")
	assert.Contains(t, out.String(), "Response: maintenance")
}

func TestDeliver_SameIdempotencyKeyOnEveryAttempt(t *testing.T) {
	svc := servicetest.New()
	base := svc.Start(t)
	svc.Force(http.MethodPost, "/api/failures", http.StatusBadGateway, nil)

	client := New([]string{base + "/api/failures", base + "/mcp/failures"})
	res := client.Deliver(context.Background(), sampleRecord())
	require.True(t, res.Delivered)

	reqs := svc.Requests()
	require.Len(t, reqs, 2)
	assert.NotEmpty(t, reqs[0].IdempotencyKey)
	assert.Equal(t, reqs[0].IdempotencyKey, reqs[1].IdempotencyKey)
	assert.Equal(t, res.IdempotencyKey, reqs[0].IdempotencyKey)

	// A new record gets a new key.
	res2 := client.Deliver(context.Background(), sampleRecord())
	assert.NotEqual(t, res.IdempotencyKey, res2.IdempotencyKey)
}

func TestDeliver_UndecodableBodyFailsOver(t *testing.T) {
	svc := servicetest.New()
	base := svc.Start(t)
	svc.Force(http.MethodPost, "/api/failures", http.StatusOK, "not json")

	res := New([]string{base + "/api/failures", base + "/mcp/failures"}).
		Deliver(context.Background(), sampleRecord())

	require.True(t, res.Delivered)
	assert.Equal(t, OutcomeDecode, res.Attempts[0].Outcome)
}

func TestDeliver_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	res := New([]string{slow.URL}, WithTimeout(50*time.Millisecond)).
		Deliver(context.Background(), sampleRecord())

	assert.False(t, res.Delivered)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, OutcomeTransport, res.Attempts[0].Outcome)
	assert.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
}

func TestDeliver_NoEndpoints(t *testing.T) {
	res := New(nil).Deliver(context.Background(), sampleRecord())
	assert.False(t, res.Delivered)
	assert.Empty(t, res.Attempts)
}

func TestDeliver_NilRecord(t *testing.T) {
	res := New([]string{"http://127.0.0.1:1"}).Deliver(context.Background(), nil)
	assert.False(t, res.Delivered)
	assert.Empty(t, res.Attempts)
}

func TestDeliver_RecoversFromPanics(t *testing.T) {
	client := New([]string{"http://127.0.0.1:1"})
	client.newKey = func() string { panic("entropy exhausted") }

	assert.NotPanics(t, func() {
		res := client.Deliver(context.Background(), sampleRecord())
		assert.False(t, res.Delivered)
	})
}

func TestDeliver_Metrics(t *testing.T) {
	svc := servicetest.New()
	base := svc.Start(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	bad := unreachable(t)
	client := New([]string{bad, base + "/api/failures"}, WithMetrics(m))
	client.Deliver(context.Background(), sampleRecord())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues(bad, OutcomeTransport)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues(base+"/api/failures", OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("delivered")))

	n, err := testutil.GatherAndCount(reg, "failtrack_delivery_attempt_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeliver_Spans(t *testing.T) {
	svc := servicetest.New()
	base := svc.Start(t)
	tel := telemetry.NewTestTelemetry()

	client := New([]string{unreachable(t), base + "/api/failures"},
		WithTracer(tel.Tracer(instrumentationName)))
	client.Deliver(context.Background(), sampleRecord())

	var attempts int
	for _, s := range tel.Spans() {
		if s.Name() == "delivery.attempt" {
			attempts++
		}
	}
	assert.Equal(t, 2, attempts)
	require.NotNil(t, tel.SpanByName("delivery.Deliver"))
}

func TestEndpointsIsACopy(t *testing.T) {
	eps := []string{"a", "b"}
	c := New(eps)
	eps[0] = "mutated"
	got := c.Endpoints()
	got[1] = "mutated"
	assert.Equal(t, []string{"a", "b"}, c.Endpoints())
	assert.False(t, strings.Contains(strings.Join(c.Endpoints(), ","), "mutated"))
}
