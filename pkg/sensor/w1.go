package sensor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gotmep/pkg/sample"
)

// W1DevicesDir is where the Linux w1 subsystem exposes bus slaves.
const W1DevicesDir = "/sys/bus/w1/devices"

// W1 reads a DS18B20 temperature sensor through the Linux 1-Wire sysfs driver.
type W1 struct {
	device string // slave directory, e.g. /sys/bus/w1/devices/28-0316a2794aff

	connected bool
}

// NewW1 creates a 1-Wire sensor. An empty device selects the first DS18B20
// (family 28) found on the bus when connecting.
func NewW1(device string) *W1 {
	return &W1{device: device}
}

// Type returns the sensor type reported over the API.
func (w *W1) Type() string {
	return "DS18B20"
}

// Connect locates the slave directory.
func (w *W1) Connect() error {
	if w.device == "" {
		matches, err := filepath.Glob(filepath.Join(W1DevicesDir, "28-*"))
		if err != nil {
			return fmt.Errorf("failed to scan 1-Wire bus: %w", err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("no DS18B20 found in %s", W1DevicesDir)
		}
		w.device = matches[0]
	}

	if _, err := os.Stat(filepath.Join(w.device, "w1_slave")); err != nil {
		return fmt.Errorf("1-Wire device %s unavailable: %w", w.device, err)
	}

	w.connected = true
	return nil
}

// Close releases the sensor.
func (w *W1) Close() error {
	w.connected = false
	return nil
}

// IsConnected returns whether the slave directory was found.
func (w *W1) IsConnected() bool {
	return w.connected
}

// Read triggers a conversion by reading w1_slave and parses the result.
func (w *W1) Read() (sample.Sample, error) {
	if !w.connected {
		if err := w.Connect(); err != nil {
			return sample.Sample{}, err
		}
	}

	f, err := os.Open(filepath.Join(w.device, "w1_slave"))
	if err != nil {
		w.connected = false
		return sample.Sample{}, fmt.Errorf("failed to open w1_slave: %w", err)
	}
	defer f.Close()

	celsius, err := parseW1Slave(bufio.NewScanner(f))
	if err != nil {
		return sample.Sample{}, err
	}

	return sample.New(time.Now(), celsius), nil
}

// parseW1Slave parses the two line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(sc *bufio.Scanner) (float32, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("w1_slave: missing crc line")
	}
	if !strings.HasSuffix(strings.TrimSpace(sc.Text()), "YES") {
		return 0, fmt.Errorf("w1_slave: crc check failed")
	}

	if !sc.Scan() {
		return 0, fmt.Errorf("w1_slave: missing temperature line")
	}
	line := sc.Text()
	idx := strings.LastIndex(line, "t=")
	if idx < 0 {
		return 0, fmt.Errorf("w1_slave: no temperature in %q", line)
	}

	milli, err := strconv.Atoi(strings.TrimSpace(line[idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("w1_slave: invalid temperature: %w", err)
	}

	return float32(milli) / 1000, nil
}
