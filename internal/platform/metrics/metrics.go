package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	EventsRecorded     *prometheus.CounterVec
	CountResets        *prometheus.CounterVec
	ScanDecisions      *prometheus.CounterVec
	AdmissionDecisions *prometheus.CounterVec
	CacheFallbacks     prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clicr_count_events_recorded_total",
			Help: "Total count events accepted by the atomic procedure",
		}, []string{"event_type"}),
		CountResets: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clicr_count_resets_total",
			Help: "Total manual count resets by scope",
		}, []string{"scope"}),
		ScanDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clicr_scan_decisions_total",
			Help: "Total identity scan decisions by result",
		}, []string{"result"}),
		AdmissionDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clicr_admission_decisions_total",
			Help: "Total capacity policy decisions by outcome",
		}, []string{"decision"}),
		CacheFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clicr_cache_fallback_reads_total",
			Help: "Total reads served from the degraded dataset cache",
		}),
	}
}

// IncrementEventsRecorded increments the recorded-events counter by 1
func (m *Metrics) IncrementEventsRecorded(eventType string) {
	m.EventsRecorded.WithLabelValues(eventType).Inc()
}

// IncrementCountResets increments the count-resets counter by 1
func (m *Metrics) IncrementCountResets(scope string) {
	m.CountResets.WithLabelValues(scope).Inc()
}

// IncrementScanDecisions increments the scan-decisions counter by 1
func (m *Metrics) IncrementScanDecisions(result string) {
	m.ScanDecisions.WithLabelValues(result).Inc()
}

// IncrementAdmissionDecisions increments the admission-decisions counter by 1
func (m *Metrics) IncrementAdmissionDecisions(decision string) {
	m.AdmissionDecisions.WithLabelValues(decision).Inc()
}

// IncrementCacheFallbacks increments the cache-fallback counter by 1
func (m *Metrics) IncrementCacheFallbacks() {
	m.CacheFallbacks.Inc()
}
