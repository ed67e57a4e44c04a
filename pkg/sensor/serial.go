package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gotmep/pkg/sample"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate of the sensor bridge.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds a single measurement exchange.
	DefaultReadTimeout = 500 * time.Millisecond

	maxLineLength = 64
)

// measureCommand asks the bridge MCU for one reading.
var measureCommand = []byte("M\n")

// ErrTimeout is returned when the bridge does not answer in time.
var ErrTimeout = errors.New("sensor read timeout")

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads a sensor attached through a serial bridge MCU.
// The bridge answers "M\n" with one line: temperature[,humidity[,pressure]].
type Serial struct {
	port        string
	baudRate    int
	readTimeout time.Duration
	open        func(name string, mode *serial.Mode) (serial.Port, error)

	conn      serial.Port
	connected bool
}

// NewSerial creates a new Serial sensor with the specified port, baud rate
// and read timeout.
func NewSerial(port string, baudRate int, readTimeout time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		readTimeout: readTimeout,
		open:        serial.Open,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Type returns the sensor type reported over the API.
func (d *Serial) Type() string {
	return "serial"
}

// Connect opens the serial port.
func (d *Serial) Connect() error {
	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := port.SetReadTimeout(d.readTimeout / 10); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	return nil
}

// Close closes the serial port.
func (d *Serial) Close() error {
	if !d.connected {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	d.connected = false
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}

	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	return d.connected
}

// Read performs one measurement exchange. The port is (re)opened on demand and
// closed again after an I/O error so the next cycle starts clean.
func (d *Serial) Read() (sample.Sample, error) {
	if !d.connected {
		if err := d.Connect(); err != nil {
			return sample.Sample{}, err
		}
	}

	line, err := d.exchange()
	if err != nil {
		d.Close()
		return sample.Sample{}, err
	}

	return parseLine(line, time.Now())
}

func (d *Serial) exchange() (string, error) {
	if err := d.conn.ResetInputBuffer(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", d.port, err)
	}
	if _, err := d.conn.Write(measureCommand); err != nil {
		return "", fmt.Errorf("failed to send measure command: %w", err)
	}

	deadline := time.Now().Add(d.readTimeout)
	var (
		line [maxLineLength]byte
		pos  int
		buf  [16]byte
	)
	for {
		n, err := d.conn.Read(buf[:])
		if err != nil {
			return "", fmt.Errorf("failed to read from serial port: %w", err)
		}
		for _, b := range buf[:n] {
			if b == '\n' {
				return strings.TrimSpace(string(line[:pos])), nil
			}
			if pos == len(line) {
				return "", fmt.Errorf("line exceeds %d bytes", maxLineLength)
			}
			line[pos] = b
			pos++
		}
		if n == 0 && time.Now().After(deadline) {
			return "", ErrTimeout
		}
	}
}

// parseLine parses a line from the bridge into a Sample.
// Format: temperature[,humidity[,pressure]]
// Example: 21.50,45.2,1013.25
func parseLine(line string, ts time.Time) (sample.Sample, error) {
	if line == "" {
		return sample.Sample{}, fmt.Errorf("empty line")
	}

	parts := strings.Split(line, ",")
	if len(parts) > len(sample.Quantities) {
		return sample.Sample{}, fmt.Errorf("invalid line format: expected at most %d comma-separated values, got %d", len(sample.Quantities), len(parts))
	}

	s := sample.Sample{Timestamp: ts}
	for i, part := range parts {
		q := sample.Quantities[i]
		part = strings.TrimSpace(part)
		if part == "" {
			if q == sample.Temperature {
				return sample.Sample{}, fmt.Errorf("missing temperature")
			}
			continue
		}
		v, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return sample.Sample{}, fmt.Errorf("invalid %s: %w", strings.ToLower(q.String()), err)
		}
		s.Set(q, float32(v))
	}

	return s, nil
}
