package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported on /metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	apiRequests        *prometheus.HistogramVec
	sessionTransitions *prometheus.CounterVec
	formSubmissions    *prometheus.CounterVec
	dashboardFailures  *prometheus.CounterVec
	tokenStoreErrors   *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		apiRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendboard",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of calls to the attendance API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "outcome"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendboard",
			Name:      "session_transitions_total",
			Help:      "Session state machine transitions by target state.",
		}, []string{"to"}),
		formSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendboard",
			Name:      "form_submissions_total",
			Help:      "Login and registration submissions by outcome.",
		}, []string{"form", "outcome"}),
		dashboardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendboard",
			Name:      "dashboard_fetch_failures_total",
			Help:      "Dashboard datasets that could not be fetched.",
		}, []string{"dataset"}),
		tokenStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendboard",
			Name:      "token_store_errors_total",
			Help:      "Failed token store operations by operation.",
		}, []string{"op"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attendboard",
			Name:      "active_sessions",
			Help:      "Browser sessions held in memory.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.apiRequests, m.sessionTransitions, m.formSubmissions, m.dashboardFailures, m.tokenStoreErrors, m.activeSessions)
	}
	return m
}

// ObserveAPI records one API round trip.
func (m *Metrics) ObserveAPI(endpoint string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.apiRequests.WithLabelValues(endpoint, outcome).Observe(took.Seconds())
}

// SessionTransition counts a move into state to.
func (m *Metrics) SessionTransition(to string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(to).Inc()
}

// FormSubmitted counts a form outcome.
func (m *Metrics) FormSubmitted(form string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.formSubmissions.WithLabelValues(form, outcome).Inc()
}

func (m *Metrics) DashboardFailure(dataset string) {
	if m == nil {
		return
	}
	m.dashboardFailures.WithLabelValues(dataset).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// TokenStoreError counts a failed persisted-token operation.
func (m *Metrics) TokenStoreError(op string) {
	if m == nil {
		return
	}
	m.tokenStoreErrors.WithLabelValues(op).Inc()
}
