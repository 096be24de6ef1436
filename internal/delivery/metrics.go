package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes used as metric labels.
const (
	OutcomeDelivered = "delivered"
	OutcomeStatus    = "status"
	OutcomeTransport = "transport"
	OutcomeDecode    = "decode"
)

// Metrics records delivery activity.
type Metrics struct {
	// AttemptsTotal counts POSTs by endpoint and outcome.
	AttemptsTotal *prometheus.CounterVec

	// AttemptDuration observes the latency of each POST.
	AttemptDuration *prometheus.HistogramVec

	// RecordsTotal counts records by final result (delivered, undelivered).
	RecordsTotal *prometheus.CounterVec
}

// NewMetrics registers delivery metrics with reg. A nil reg leaves the
// collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "failtrack",
				Subsystem: "delivery",
				Name:      "attempts_total",
				Help:      "Total delivery attempts by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		AttemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "failtrack",
				Subsystem: "delivery",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of delivery attempts in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"outcome"},
		),
		RecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "failtrack",
				Subsystem: "delivery",
				Name:      "records_total",
				Help:      "Total failure records by delivery result",
			},
			[]string{"result"},
		),
	}
}
