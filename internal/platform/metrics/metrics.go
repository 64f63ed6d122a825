package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback sync engine.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	seeksIssuedTotal     prometheus.Counter
	feedbackAppliedTotal prometheus.Counter
	feedbackDropped      *prometheus.CounterVec
	barriersFiredTotal   prometheus.Counter
	sessionsCreatedTotal prometheus.Counter
	sessionsEndedTotal   prometheus.Counter
	activeSessions       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the sync engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	seeksIssuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_seeks_issued_total",
		Help: "Total number of corrective seeks issued to streams",
	})
	feedbackAppliedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_feedback_applied_total",
		Help: "Total number of leader time reports applied to the clock",
	})
	feedbackDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playsync_feedback_dropped_total",
		Help: "Total number of stream time reports not applied to the clock, by reason",
	}, []string{"reason"})
	barriersFiredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_barriers_fired_total",
		Help: "Total number of readiness barrier transitions",
	})
	sessionsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_sessions_created_total",
		Help: "Total number of episode sessions created",
	})
	sessionsEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playsync_sessions_ended_total",
		Help: "Total number of episode sessions ended or replaced",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playsync_active_sessions",
		Help: "Number of live episode sessions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		seeksIssuedTotal,
		feedbackAppliedTotal,
		feedbackDropped,
		barriersFiredTotal,
		sessionsCreatedTotal,
		sessionsEndedTotal,
		activeSessions,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		seeksIssuedTotal:     seeksIssuedTotal,
		feedbackAppliedTotal: feedbackAppliedTotal,
		feedbackDropped:      feedbackDropped,
		barriersFiredTotal:   barriersFiredTotal,
		sessionsCreatedTotal: sessionsCreatedTotal,
		sessionsEndedTotal:   sessionsEndedTotal,
		activeSessions:       activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSeeksIssued increments the corrective-seek counter.
func (m *Metrics) IncSeeksIssued() {
	m.seeksIssuedTotal.Inc()
}

// IncFeedbackApplied increments the applied leader-feedback counter.
func (m *Metrics) IncFeedbackApplied() {
	m.feedbackAppliedTotal.Inc()
}

// IncFeedbackDropped increments the dropped-feedback counter for a reason
// ("not_leader", "suppressed", "rate_limited").
func (m *Metrics) IncFeedbackDropped(reason string) {
	m.feedbackDropped.WithLabelValues(reason).Inc()
}

// IncBarriersFired increments the readiness-barrier counter.
func (m *Metrics) IncBarriersFired() {
	m.barriersFiredTotal.Inc()
}

// IncSessionsCreated increments the created-sessions counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreatedTotal.Inc()
}

// IncSessionsEnded increments the ended-sessions counter.
func (m *Metrics) IncSessionsEnded() {
	m.sessionsEndedTotal.Inc()
}

// SetActiveSessions sets the live-sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
