package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CoreMetricsRegistered(t *testing.T) {
	r := NewRegistry()

	r.Metrics.RecordEventReceived("scroll")
	r.Metrics.RecordEventReceived("scroll")
	r.Metrics.RecordEventSampledOut("scroll")
	r.Metrics.RecordBufferSize(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.EventsReceived.WithLabelValues("scroll")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.EventsSampledOut.WithLabelValues("scroll")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.Metrics.EventsBuffered))
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_component_ops_total",
		Help: "test",
	})

	require.NoError(t, r.Register("websocket-input", "ops_total", counter))
	err := r.Register("websocket-input", "ops_total", counter)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_component_ops_total",
		Help: "test",
	})
	require.NoError(t, r.Register("websocket-input", "ops_total", counter))

	assert.True(t, r.Unregister("websocket-input", "ops_total"))
	assert.False(t, r.Unregister("websocket-input", "ops_total"))

	// Re-registration after unregister succeeds
	assert.NoError(t, r.Register("websocket-input", "ops_total", counter))
}

func TestRecordFlush(t *testing.T) {
	r := NewRegistry()

	r.Metrics.RecordFlush("timer", "success", 10, 25*time.Millisecond)
	r.Metrics.RecordFlush("capacity", "failure", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.FlushesTotal.WithLabelValues("timer", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.FlushesTotal.WithLabelValues("capacity", "failure")))
}

func TestRecordNATSStatus(t *testing.T) {
	r := NewRegistry()

	r.Metrics.RecordNATSStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.NATSConnected))

	r.Metrics.RecordNATSStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Metrics.NATSConnected))
}
