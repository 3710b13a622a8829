package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts and times gateway operations
type Recorder struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

// NewRecorder creates the gateway metrics and registers them with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Gateway operations by gateway, operation and resulting status.",
		}, []string{"gateway", "operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of gateway operations including processor round trips.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gateway", "operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_notifications_total",
			Help: "Processor notifications by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(r.requests, r.duration, r.notifications)
	}
	return r
}

// Observe records one finished operation. status is the canonical status, or
// the error class when the call failed before producing a result.
func (r *Recorder) Observe(gateway, operation, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(gateway, operation, status).Inc()
	r.duration.WithLabelValues(gateway, operation).Observe(elapsed.Seconds())
}

// Notification records the outcome of an inbound processor callback
func (r *Recorder) Notification(gateway, outcome string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(gateway, outcome).Inc()
}
