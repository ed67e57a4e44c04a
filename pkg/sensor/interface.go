package sensor

import "github.com/itohio/gotmep/pkg/sample"

// Sensor defines the interface for sensor drivers (real or mocked).
type Sensor interface {
	Connect() error
	Close() error
	Read() (sample.Sample, error)
	Type() string
	IsConnected() bool
}

// Ensure Serial implements Sensor.
var _ Sensor = (*Serial)(nil)

// Ensure W1 implements Sensor.
var _ Sensor = (*W1)(nil)

// Ensure Mock implements Sensor.
var _ Sensor = (*Mock)(nil)
