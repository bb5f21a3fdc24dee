package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	chartReads    *prometheus.CounterVec
	syncs         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		chartReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartsync_chart_reads_total",
				Help: "Cached chart reads by outcome (fresh, expired, no_data, unknown_instrument)",
			},
			[]string{"result"},
		),
		syncs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartsync_syncs_total",
				Help: "Chart sync attempts by outcome",
			},
			[]string{"result"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartsync_notifications_total",
				Help: "Observer notifications pushed by kind",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartsync_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chartsync_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordChartRead records the outcome of a cached chart read.
func (r *Recorder) RecordChartRead(result string) {
	r.chartReads.WithLabelValues(result).Inc()
}

// RecordSync records the outcome of a provider sync.
func (r *Recorder) RecordSync(result string) {
	r.syncs.WithLabelValues(result).Inc()
}

// RecordNotification records a pushed observer notification.
func (r *Recorder) RecordNotification(kind string) {
	r.notifications.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) RecordChartRead(string)        {}
func (Noop) RecordSync(string)             {}
func (Noop) RecordNotification(string)     {}
func (Noop) RecordError(string)            {}
func (Noop) RecordLatency(string, float64) {}
