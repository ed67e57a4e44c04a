package sample

import (
	"errors"
	"fmt"
)

// DefaultWindowSize is the number of samples in the rolling average.
const DefaultWindowSize = 30

// ErrSensorFailure is returned by Estimator.Update for missing or invalid samples.
var ErrSensorFailure = errors.New("sensor failure")

// Window is a fixed-capacity ring of the most recent values of one quantity.
// Storage is allocated once; the oldest value is overwritten when full.
type Window struct {
	values []float32
	next   int  // index of the next write
	filled bool // set once the ring has wrapped
}

// NewWindow creates a window holding up to capacity values.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{values: make([]float32, capacity)}
}

// Push stores v, evicting the oldest value when the window is full.
func (w *Window) Push(v float32) {
	w.values[w.next] = v
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.filled = true
	}
}

// Len returns the number of valid entries.
func (w *Window) Len() int {
	if w.filled {
		return len(w.values)
	}
	return w.next
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.values)
}

// Average returns the arithmetic mean of the valid entries, 0 when empty.
func (w *Window) Average() float32 {
	n := w.Len()
	if n == 0 {
		return 0
	}

	var sum float64
	for _, v := range w.values[:n] {
		sum += float64(v)
	}
	return float32(sum / float64(n))
}

// Values returns a copy of the valid entries, oldest first.
func (w *Window) Values() []float32 {
	if !w.filled {
		result := make([]float32, w.next)
		copy(result, w.values[:w.next])
		return result
	}

	result := make([]float32, 0, len(w.values))
	result = append(result, w.values[w.next:]...)
	result = append(result, w.values[:w.next]...)
	return result
}

// Snapshot is a read-only view of the current averages.
type Snapshot struct {
	RSSI  int // Signal strength in dBm, supplied by the caller
	Count int // Samples currently in the temperature window

	averages [numQuantities]float32
	tracked  [numQuantities]bool
}

// Average returns the rolling average of q and whether q is tracked.
func (s Snapshot) Average(q Quantity) (float32, bool) {
	if q < 0 || q >= numQuantities {
		return 0, false
	}
	return s.averages[q], s.tracked[q]
}

// Temperature returns the rolling average temperature.
func (s Snapshot) Temperature() float32 {
	return s.averages[Temperature]
}

// Quantities returns the tracked quantities in reporting order.
func (s Snapshot) Quantities() []Quantity {
	result := make([]Quantity, 0, numQuantities)
	for _, q := range Quantities {
		if s.tracked[q] {
			result = append(result, q)
		}
	}
	return result
}

// Estimator maintains one rolling window per tracked quantity.
// It is not safe for concurrent use; the control loop owns it.
type Estimator struct {
	windows  [numQuantities]*Window
	averages [numQuantities]float32

	samples  uint64
	failures uint64
}

// NewEstimator creates an estimator with windows of the given size.
// Temperature is always tracked; extra lists the optional quantities.
func NewEstimator(size int, extra ...Quantity) *Estimator {
	if size <= 0 {
		size = DefaultWindowSize
	}

	e := &Estimator{}
	e.windows[Temperature] = NewWindow(size)
	for _, q := range extra {
		if q > Temperature && q < numQuantities && e.windows[q] == nil {
			e.windows[q] = NewWindow(size)
		}
	}
	return e
}

// Tracks reports whether q has a window.
func (e *Estimator) Tracks(q Quantity) bool {
	return q >= 0 && q < numQuantities && e.windows[q] != nil
}

// Update pushes every tracked quantity of s into its window and recomputes the
// averages. If any tracked quantity is missing or invalid nothing is changed,
// the failure is counted and ErrSensorFailure is returned.
func (e *Estimator) Update(s Sample) error {
	for _, q := range Quantities {
		if e.windows[q] == nil {
			continue
		}
		v, ok := s.Value(q)
		if !ok {
			e.failures++
			return fmt.Errorf("%w: %s missing", ErrSensorFailure, q)
		}
		if !valid(q, v) {
			e.failures++
			return fmt.Errorf("%w: invalid %s %v", ErrSensorFailure, q, v)
		}
	}

	for _, q := range Quantities {
		w := e.windows[q]
		if w == nil {
			continue
		}
		v, _ := s.Value(q)
		w.Push(v)
		e.averages[q] = w.Average()
	}
	e.samples++

	return nil
}

// Snapshot returns the current averages without mutating state.
func (e *Estimator) Snapshot(rssi int) Snapshot {
	snap := Snapshot{
		RSSI:  rssi,
		Count: e.windows[Temperature].Len(),
	}
	for _, q := range Quantities {
		if e.windows[q] != nil {
			snap.tracked[q] = true
			snap.averages[q] = e.averages[q]
		}
	}
	return snap
}

// Window returns the window of q, or nil if q is not tracked.
func (e *Estimator) Window(q Quantity) *Window {
	if !e.Tracks(q) {
		return nil
	}
	return e.windows[q]
}

// Samples returns the number of accepted samples.
func (e *Estimator) Samples() uint64 {
	return e.samples
}

// Failures returns the number of rejected samples.
func (e *Estimator) Failures() uint64 {
	return e.failures
}
