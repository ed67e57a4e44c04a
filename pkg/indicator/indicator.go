package indicator

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Blink counts used by the device. A failed measurement produces the
// liveness blink followed by one more.
const (
	Liveness        = 1
	SensorFailure   = 1
	ConnectFailure  = 2 // pattern A
	ResponseTimeout = 3 // pattern B
	Fatal           = 1
)

// DefaultInterval is the LED on and off time of one blink.
const DefaultInterval = 250 * time.Millisecond

// Indicator signals device status with a number of blinks.
type Indicator interface {
	Blink(count int)
}

// Log reports blinks to a structured logger. Used on hosts without an LED.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging indicator.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Blink logs the blink count at debug level.
func (l *Log) Blink(count int) {
	l.logger.Debug("blink", slog.Int("count", count))
}

// Sysfs drives an LED exposed by the Linux LED class, e.g.
// /sys/class/leds/led0/brightness. Blinking blocks the caller for
// 2*interval per blink.
type Sysfs struct {
	path     string
	interval time.Duration
	sleep    func(time.Duration)
	logger   *slog.Logger
}

// NewSysfs creates an LED indicator writing to the given brightness file.
func NewSysfs(path string, interval time.Duration, logger *slog.Logger) (*Sysfs, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sysfs{path: path, interval: interval, sleep: time.Sleep, logger: logger}
	if err := s.set(false); err != nil {
		return nil, err
	}
	return s, nil
}

// Blink turns the LED on and off count times.
func (s *Sysfs) Blink(count int) {
	for i := 0; i < count; i++ {
		if err := s.set(true); err != nil {
			s.logger.Warn("LED write failed", slog.String("path", s.path), slog.Any("error", err))
			return
		}
		s.sleep(s.interval)
		if err := s.set(false); err != nil {
			s.logger.Warn("LED write failed", slog.String("path", s.path), slog.Any("error", err))
			return
		}
		s.sleep(s.interval)
	}
}

func (s *Sysfs) set(on bool) error {
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	if err := os.WriteFile(s.path, value, 0644); err != nil {
		return fmt.Errorf("failed to write LED %s: %w", s.path, err)
	}
	return nil
}

// Recorder remembers every blink. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	blinks []int
}

// Blink records count.
func (r *Recorder) Blink(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blinks = append(r.blinks, count)
}

// Blinks returns a copy of the recorded blink counts.
func (r *Recorder) Blinks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]int, len(r.blinks))
	copy(result, r.blinks)
	return result
}

// Reset forgets recorded blinks.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blinks = nil
}
