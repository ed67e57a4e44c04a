package sample

import (
	"errors"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_PartialFill(t *testing.T) {
	tests := []struct {
		name   string
		values []float32
		want   float32
	}{
		{"empty", nil, 0},
		{"single", []float32{21.5}, 21.5},
		{"two", []float32{1, 2}, 1.5},
		{"full", []float32{1, 2, 3, 4, 5}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(5)
			for _, v := range tt.values {
				w.Push(v)
			}
			assert.Equal(t, len(tt.values), w.Len())
			assert.InDelta(t, tt.want, w.Average(), 1e-6)
			assert.Equal(t, tt.values, nilIfEmpty(w.Values()))
		})
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float32{1, 2, 3, 4} {
		w.Push(v)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 3, w.Cap())
	assert.Equal(t, []float32{2, 3, 4}, w.Values())
	assert.InDelta(t, 3.0, w.Average(), 1e-6)
}

func TestWindow_MeanOfMostRecent(t *testing.T) {
	const capacity = 7
	w := NewWindow(capacity)

	var pushed []float32
	for i := 0; i < capacity*3+2; i++ {
		v := float32(i*i%13) + 0.25
		w.Push(v)
		pushed = append(pushed, v)

		recent := pushed
		if len(recent) > capacity {
			recent = recent[len(recent)-capacity:]
		}
		var sum float64
		for _, r := range recent {
			sum += float64(r)
		}
		require.InDelta(t, sum/float64(len(recent)), float64(w.Average()), 1e-5, "after %d pushes", i+1)
	}
}

func TestNewWindow_InvalidCapacity(t *testing.T) {
	w := NewWindow(0)
	w.Push(5)
	w.Push(7)
	assert.Equal(t, 1, w.Cap())
	assert.Equal(t, float32(7), w.Average())
}

func TestEstimator_ScenarioA(t *testing.T) {
	e := NewEstimator(30)
	now := time.Now()

	for i, v := range []float32{10, 20, 30} {
		require.NoError(t, e.Update(New(now.Add(time.Duration(i)*time.Second), v)))
	}

	snap := e.Snapshot(-60)
	assert.InDelta(t, 20.0, snap.Temperature(), 1e-6)
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, -60, snap.RSSI)
}

func TestEstimator_ScenarioB(t *testing.T) {
	e := NewEstimator(3)
	for _, v := range []float32{1, 2, 3, 4} {
		require.NoError(t, e.Update(New(time.Now(), v)))
	}

	assert.InDelta(t, 3.0, e.Snapshot(0).Temperature(), 1e-6)
	assert.Equal(t, []float32{2, 3, 4}, e.Window(Temperature).Values())
}

func TestEstimator_FailedSampleLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
	}{
		{"missing", Sample{}},
		{"disconnected", New(time.Now(), DisconnectedC)},
		{"nan", New(time.Now(), math32.NaN())},
		{"inf", New(time.Now(), math32.Inf(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(5)
			require.NoError(t, e.Update(New(time.Now(), 10)))
			require.NoError(t, e.Update(New(time.Now(), 12)))
			before := e.Window(Temperature).Values()

			err := e.Update(tt.sample)
			assert.True(t, errors.Is(err, ErrSensorFailure))

			assert.Equal(t, before, e.Window(Temperature).Values())
			assert.InDelta(t, 11.0, e.Snapshot(0).Temperature(), 1e-6)
			assert.Equal(t, uint64(2), e.Samples())
			assert.Equal(t, uint64(1), e.Failures())
		})
	}
}

func TestEstimator_OptionalQuantities(t *testing.T) {
	e := NewEstimator(4, Humidity, Pressure)
	assert.True(t, e.Tracks(Temperature))
	assert.True(t, e.Tracks(Humidity))
	assert.True(t, e.Tracks(Pressure))

	s := New(time.Now(), 20)
	s.Set(Humidity, 40)
	s.Set(Pressure, 1000)
	require.NoError(t, e.Update(s))

	s = New(time.Now(), 22)
	s.Set(Humidity, 50)
	s.Set(Pressure, 1010)
	require.NoError(t, e.Update(s))

	snap := e.Snapshot(-70)
	assert.Equal(t, []Quantity{Temperature, Humidity, Pressure}, snap.Quantities())

	humi, ok := snap.Average(Humidity)
	assert.True(t, ok)
	assert.InDelta(t, 45.0, humi, 1e-6)

	pres, ok := snap.Average(Pressure)
	assert.True(t, ok)
	assert.InDelta(t, 1005.0, pres, 1e-4)
}

func TestEstimator_MissingOptionalQuantityFailsWholeSample(t *testing.T) {
	e := NewEstimator(4, Humidity)

	err := e.Update(New(time.Now(), 20))
	assert.ErrorIs(t, err, ErrSensorFailure)
	assert.Equal(t, 0, e.Window(Temperature).Len())
	assert.Equal(t, 0, e.Window(Humidity).Len())
}

func TestEstimator_UntrackedQuantityIgnored(t *testing.T) {
	e := NewEstimator(4)

	s := New(time.Now(), 20)
	s.Set(Humidity, 40)
	require.NoError(t, e.Update(s))

	snap := e.Snapshot(0)
	_, ok := snap.Average(Humidity)
	assert.False(t, ok)
	assert.Nil(t, e.Window(Humidity))
	assert.Equal(t, []Quantity{Temperature}, snap.Quantities())
}

func TestEstimator_SnapshotDoesNotMutate(t *testing.T) {
	e := NewEstimator(3)
	require.NoError(t, e.Update(New(time.Now(), 5)))

	first := e.Snapshot(-50)
	second := e.Snapshot(-50)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(1), e.Samples())
}

func nilIfEmpty(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	return v
}
