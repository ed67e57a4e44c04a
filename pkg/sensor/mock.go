package sensor

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/gotmep/pkg/sample"
)

// MockConfig contains simulated sensor parameters.
type MockConfig struct {
	Bias      float32       // Base temperature (C)
	Noise     float32       // Noise amplitude (C)
	Swing     float32       // Amplitude of the slow drift (C)
	Period    time.Duration // Period of the slow drift
	Humidity  bool
	Pressure  bool
	FailEvery int // Every n-th read fails; 0 disables
}

// Mock simulates a sensor for testing and development.
type Mock struct {
	cfg MockConfig
	now func() time.Time

	connected bool
	startTime time.Time
	reads     int
}

// NewMock creates a new mocked sensor instance.
func NewMock(cfg MockConfig) *Mock {
	if cfg.Period <= 0 {
		cfg.Period = time.Hour
	}
	if cfg.Swing == 0 {
		cfg.Swing = 1.5
	}

	return &Mock{
		cfg: cfg,
		now: time.Now,
	}
}

// Type returns the sensor type reported over the API.
func (m *Mock) Type() string {
	return "mock"
}

// Connect simulates connecting to the sensor.
func (m *Mock) Connect() error {
	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = m.now()

	return nil
}

// Close stops the mocked sensor.
func (m *Mock) Close() error {
	m.connected = false
	return nil
}

// IsConnected returns whether the sensor is currently connected.
func (m *Mock) IsConnected() bool {
	return m.connected
}

// Read generates a single simulated sample.
func (m *Mock) Read() (sample.Sample, error) {
	if !m.connected {
		if err := m.Connect(); err != nil {
			return sample.Sample{}, err
		}
	}

	m.reads++
	if m.cfg.FailEvery > 0 && m.reads%m.cfg.FailEvery == 0 {
		return sample.Sample{}, fmt.Errorf("simulated read failure #%d", m.reads)
	}

	now := m.now()
	elapsed := float32(now.Sub(m.startTime).Seconds())
	phase := 2 * math32.Pi * elapsed / float32(m.cfg.Period.Seconds())

	// Slow drift plus deterministic pseudo noise
	noise := (math32.Sin(elapsed*7.3) + math32.Cos(elapsed*3.1)) * m.cfg.Noise * 0.5
	s := sample.New(now, m.cfg.Bias+m.cfg.Swing*math32.Sin(phase)+noise)

	if m.cfg.Humidity {
		s.Set(sample.Humidity, 45+10*math32.Cos(phase)+noise)
	}
	if m.cfg.Pressure {
		s.Set(sample.Pressure, 1013.25+2*math32.Sin(phase/2))
	}

	return s, nil
}
