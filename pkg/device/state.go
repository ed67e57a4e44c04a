package device

import (
	"math/rand/v2"
	"strconv"

	"github.com/itohio/gotmep/pkg/gate"
	"github.com/itohio/gotmep/pkg/rssi"
	"github.com/itohio/gotmep/pkg/sample"
	"github.com/itohio/gotmep/pkg/store"
)

// PIN range of the generated configuration PIN.
const (
	minPIN = 1000000
	maxPIN = 99999999
)

// RandomPIN returns a configuration PIN in [1000000, 99999999).
func RandomPIN(r *rand.Rand) string {
	return strconv.Itoa(minPIN + r.IntN(maxPIN-minPIN))
}

// State is everything the control loop owns. Only the loop goroutine may
// touch it; HTTP handlers reach it through Loop.Submit.
type State struct {
	Estimator  *sample.Estimator
	Gate       *gate.Gate
	Targets    [store.MaxHosts]string
	DeviceID   string
	SensorType string
	Signal     rssi.Source
}

// RSSI returns the current signal strength, 0 when unknown.
func (s *State) RSSI() int {
	if s.Signal == nil {
		return 0
	}
	v, err := s.Signal.RSSI()
	if err != nil {
		return 0
	}
	return v
}

// Snapshot returns the current averages with the signal strength.
func (s *State) Snapshot() sample.Snapshot {
	return s.Estimator.Snapshot(s.RSSI())
}

// Document renders snap in the shape served by the JSON API.
func (s *State) Document(snap sample.Snapshot) Document {
	doc := Document{
		Temp:       Decimal(snap.Temperature()),
		RSSI:       snap.RSSI,
		SensorType: s.SensorType,
		DeviceID:   s.DeviceID,
		Version:    Version,
	}
	if v, ok := snap.Average(sample.Humidity); ok {
		d := Decimal(v)
		doc.Humi = &d
	}
	if v, ok := snap.Average(sample.Pressure); ok {
		d := Decimal(v)
		doc.Pres = &d
	}
	return doc
}

// Decimal is a measurement encoded with two decimals.
type Decimal float32

// MarshalJSON encodes d as a number with two decimals.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(d), 'f', 2, 32), nil
}

// Document is the JSON snapshot served at /api and mirrored over MQTT.
type Document struct {
	Temp       Decimal  `json:"temp"`
	RSSI       int      `json:"rssi"`
	Humi       *Decimal `json:"humi,omitempty"`
	Pres       *Decimal `json:"pres,omitempty"`
	SensorType string   `json:"sensorType"`
	DeviceID   string   `json:"deviceId"`
	Version    string   `json:"version"`
}
