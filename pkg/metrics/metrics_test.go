package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/itohio/gotmep/pkg/sample"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	e := sample.NewEstimator(3, sample.Humidity)
	s := sample.New(time.Now(), 20)
	s.Set(sample.Humidity, 40)
	require.NoError(t, e.Update(s))

	m.ObserveSample(e.Snapshot(0))
	m.SensorFailure()
	m.SensorFailure()
	m.Push(PushOK)
	m.Push(PushTimeout)
	m.Push(PushTimeout)
	m.ResetAttempt("rejected")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.samples))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sensorFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushes.WithLabelValues(PushOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pushes.WithLabelValues(PushTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets.WithLabelValues("rejected")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.average.WithLabelValues("temp")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.average.WithLabelValues("humi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.windowCount))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSample(sample.Snapshot{})
	m.SensorFailure()
	m.Push(PushOK)
	m.Mirror(PushOK)
	m.ResetAttempt("accepted")
	m.Uptime(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Push(PushConnect)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `gotmep_push_total{outcome="connect_error"} 1`))
}
