package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itohio/gotmep/pkg/clock"
	"github.com/itohio/gotmep/pkg/device"
	"github.com/itohio/gotmep/pkg/gate"
	"github.com/itohio/gotmep/pkg/indicator"
	"github.com/itohio/gotmep/pkg/metrics"
	"github.com/itohio/gotmep/pkg/rssi"
	"github.com/itohio/gotmep/pkg/sample"
	"github.com/itohio/gotmep/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type constSensor struct {
	s sample.Sample
}

func (c constSensor) Read() (sample.Sample, error) {
	return c.s, nil
}

type nopReporter struct{}

func (nopReporter) SendAll(context.Context, []string, sample.Snapshot, string) error {
	return nil
}

type fixture struct {
	server *Server
	loop   *device.Loop
	store  *store.Memory
	clock  *clock.Fake
}

func newFixture(t *testing.T, extra ...sample.Quantity) *fixture {
	t.Helper()

	s := sample.New(time.Now(), 20)
	s.Set(sample.Humidity, 55.5)

	f := &fixture{
		store: &store.Memory{Settings: &store.Settings{PIN: "1234"}},
		clock: &clock.Fake{},
	}
	state := &device.State{
		Estimator:  sample.NewEstimator(sample.DefaultWindowSize, extra...),
		Gate:       gate.New("1234", 3, 5*time.Second, f.store),
		DeviceID:   "GoTMEP-DEADBEEF",
		SensorType: "mock",
		Signal:     rssi.Fixed(-60),
	}
	m := metrics.New()
	f.loop = device.NewLoop(device.Config{}, state, f.clock, constSensor{s}, &indicator.Recorder{}, nopReporter{}, device.WithMetrics(m))

	server, err := New(f.loop, m, nil)
	require.NoError(t, err)
	f.server = server

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the first measurement
	require.Eventually(t, func() bool {
		var n uint64
		if err := f.loop.Submit(context.Background(), func(st *device.State) {
			n = st.Estimator.Samples()
		}); err != nil {
			return false
		}
		return n > 0
	}, time.Second, time.Millisecond)

	return f
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func assertCommonHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "-1", rec.Header().Get("Expires"))
	assert.Equal(t, "GoTMEP/"+device.Version, rec.Header().Get("Server"))
}

func TestHome(t *testing.T) {
	f := newFixture(t, sample.Humidity)

	rec := f.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assertCommonHeaders(t, rec)

	body := rec.Body.String()
	assert.Contains(t, body, "<header>Temperature</header>")
	assert.Contains(t, body, "20.00 °C")
	assert.Contains(t, body, "<header>Humidity</header>")
	assert.Contains(t, body, "55.50 % RH")
	assert.Contains(t, body, "-60 dBm")
	assert.Contains(t, body, `href="/api"`)
	assert.Contains(t, body, "resetConfig()")
	assert.Contains(t, body, "GoTMEP/"+device.Version)
}

func TestStyles(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/styles.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "footer {")
	assertCommonHeaders(t, rec)
}

func TestAPI(t *testing.T) {
	tests := []struct {
		name     string
		extra    []sample.Quantity
		wantHumi bool
	}{
		{name: "temperature only"},
		{name: "with humidity", extra: []sample.Quantity{sample.Humidity}, wantHumi: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.extra...)

			rec := f.get("/api")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			assertCommonHeaders(t, rec)

			var doc map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
			assert.Equal(t, 20.0, doc["temp"])
			assert.Equal(t, -60.0, doc["rssi"])
			assert.Equal(t, "mock", doc["sensorType"])
			assert.Equal(t, "GoTMEP-DEADBEEF", doc["deviceId"])
			assert.Equal(t, device.Version, doc["version"])
			assert.NotContains(t, doc, "pres")

			humi, ok := doc["humi"]
			assert.Equal(t, tt.wantHumi, ok)
			if tt.wantHumi {
				assert.Equal(t, 55.5, humi)
			}
		})
	}
}

func TestReset_Lockout(t *testing.T) {
	f := newFixture(t)

	steps := []struct {
		pin  string
		want string
	}{
		{"1", "2 tries remaining"},
		{"", "1 tries remaining"},
		{"12345", "0 tries remaining"},
		{"1234", "System is locked until next reboot"},
		{"1", "System is locked until next reboot"},
	}

	for _, s := range steps {
		rec := f.get("/reset?pin=" + s.pin)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), s.want, "pin %q", s.pin)
		assertCommonHeaders(t, rec)
	}
	assert.Equal(t, 0, f.store.Deletes)
}

func TestReset_Accepted(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/reset?pin=1")
	assert.Contains(t, rec.Body.String(), "2 tries remaining")

	rec = f.get("/reset?pin=1234")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "System will reset to configuration mode")
	assert.Contains(t, rec.Body.String(), "<code>GoTMEP-DEADBEEF</code>")

	rec = f.get("/reset?pin=1234")
	assert.Equal(t, http.StatusOK, rec.Code)

	var deletes int
	require.NoError(t, f.loop.Submit(context.Background(), func(st *device.State) {
		deletes = f.store.Deletes
		assert.Equal(t, gate.PendingRestart, st.Gate.State())
	}))
	assert.Equal(t, 1, deletes)
}

func TestReset_RestartsAfterDelay(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/reset?pin=1234")
	require.Contains(t, rec.Body.String(), "System will reset")

	f.clock.Advance(5*time.Second + time.Millisecond)
	require.Eventually(t, func() bool {
		return f.get("/api").Code == http.StatusServiceUnavailable
	}, time.Second, time.Millisecond)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404 Object Not Found")
	assertCommonHeaders(t, rec)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.get("/reset?pin=0")

	rec := f.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gotmep_reset_attempts_total{outcome="rejected"} 1`)
	assert.Contains(t, rec.Body.String(), "gotmep_samples_total 1")
}
