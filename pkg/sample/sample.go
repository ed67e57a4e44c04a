package sample

import (
	"time"

	"github.com/chewxy/math32"
)

// Quantity identifies one measured physical quantity.
type Quantity int

const (
	Temperature Quantity = iota // degrees Celsius
	Humidity                    // % RH
	Pressure                    // hPa

	numQuantities
)

// Quantities lists every known quantity in reporting order.
var Quantities = [numQuantities]Quantity{Temperature, Humidity, Pressure}

// DisconnectedC is the reading a 1-Wire temperature sensor reports when it
// drops off the bus.
const DisconnectedC float32 = -127

// Key returns the short name used in query strings and JSON documents.
func (q Quantity) Key() string {
	switch q {
	case Temperature:
		return "temp"
	case Humidity:
		return "humi"
	case Pressure:
		return "pres"
	}
	return "unknown"
}

// Unit returns the display unit.
func (q Quantity) Unit() string {
	switch q {
	case Temperature:
		return "°C"
	case Humidity:
		return "% RH"
	case Pressure:
		return "hPa"
	}
	return ""
}

func (q Quantity) String() string {
	switch q {
	case Temperature:
		return "Temperature"
	case Humidity:
		return "Humidity"
	case Pressure:
		return "Pressure"
	}
	return "Unknown"
}

// Sample represents the measurements taken at one instant.
// The zero value carries no measurements and is treated as a failed read.
type Sample struct {
	Timestamp time.Time

	values  [numQuantities]float32
	present [numQuantities]bool
}

// New creates a sample holding a temperature reading.
func New(ts time.Time, temperature float32) Sample {
	s := Sample{Timestamp: ts}
	s.Set(Temperature, temperature)
	return s
}

// Set stores the value of q.
func (s *Sample) Set(q Quantity, v float32) {
	if q < 0 || q >= numQuantities {
		return
	}
	s.values[q] = v
	s.present[q] = true
}

// Value returns the value of q and whether it was measured.
func (s Sample) Value(q Quantity) (float32, bool) {
	if q < 0 || q >= numQuantities {
		return 0, false
	}
	return s.values[q], s.present[q]
}

// valid reports whether v is a usable reading of q.
func valid(q Quantity, v float32) bool {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return false
	}
	if q == Temperature && math32.Abs(v-DisconnectedC) < 1e-3 {
		return false
	}
	return true
}
