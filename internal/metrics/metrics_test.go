package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Observe("eway", "process_cc", "approved", 120*time.Millisecond)
	r.Observe("eway", "process_cc", "approved", 80*time.Millisecond)
	r.Notification("skrill", "applied")

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				byName[f.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				byName[f.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 2.0, byName["gateway_requests_total"])
	assert.Equal(t, 2.0, byName["gateway_request_duration_seconds"])
	assert.Equal(t, 1.0, byName["gateway_notifications_total"])
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Observe("eway", "refund_cc", "error", time.Second)
		r.Notification("payza", "rejected")
	})
}
