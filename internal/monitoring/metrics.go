package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cycle metrics
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_cycles_total",
			Help: "Total number of completed evaluation cycles",
		},
	)

	findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_findings_total",
			Help: "Total findings produced, by severity",
		},
		[]string{"severity"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_actions_total",
			Help: "Total per-bot actions dispatched, by action type",
		},
		[]string{"action"},
	)

	// Delivery and publication metrics
	dispatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_dispatch_failures_total",
			Help: "Total local deliveries that exhausted their retry budget",
		},
	)

	dispatchRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_dispatch_rejections_total",
			Help: "Total actions rejected by a bot's local authority",
		},
	)

	busPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_bus_publish_failures_total",
			Help: "Total failed bus publications",
		},
	)

	auditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_audit_write_failures_total",
			Help: "Total failed audit log appends",
		},
	)

	// State metrics
	governorMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "governor_mode",
			Help: "Current governor operating mode (1 for active mode)",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(findingsTotal)
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(dispatchFailuresTotal)
	prometheus.MustRegister(dispatchRejectionsTotal)
	prometheus.MustRegister(busPublishFailuresTotal)
	prometheus.MustRegister(auditWriteFailuresTotal)
	prometheus.MustRegister(governorMode)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordCycle records a completed evaluation cycle.
func RecordCycle() {
	cyclesTotal.Inc()
}

// RecordFinding records one finding by severity.
func RecordFinding(severity string) {
	findingsTotal.WithLabelValues(severity).Inc()
}

// RecordAction records one dispatched per-bot action.
func RecordAction(action string) {
	actionsTotal.WithLabelValues(action).Inc()
}

// RecordDispatchFailure records a retry-exhausted delivery.
func RecordDispatchFailure() {
	dispatchFailuresTotal.Inc()
}

// RecordDispatchRejection records a local-authority rejection.
func RecordDispatchRejection() {
	dispatchRejectionsTotal.Inc()
}

// RecordBusPublishFailure records a failed bus publication.
func RecordBusPublishFailure() {
	busPublishFailuresTotal.Inc()
}

// RecordAuditWriteFailure records a failed audit append.
func RecordAuditWriteFailure() {
	auditWriteFailuresTotal.Inc()
}

// SetMode marks the active governor mode gauge.
func SetMode(mode string) {
	governorMode.Reset()
	governorMode.WithLabelValues(mode).Set(1)
}
