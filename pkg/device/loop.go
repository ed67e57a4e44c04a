package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itohio/gotmep/pkg/clock"
	"github.com/itohio/gotmep/pkg/indicator"
	"github.com/itohio/gotmep/pkg/metrics"
	"github.com/itohio/gotmep/pkg/sample"
)

const (
	// DefaultLoopInterval is the measurement cadence.
	DefaultLoopInterval = 2 * time.Second
	// DefaultSendInterval is the remote push cadence.
	DefaultSendInterval = 60 * time.Second
	// DefaultRebootInterval is the forced restart uptime, 29 hours.
	DefaultRebootInterval = 104400000 * time.Millisecond
	// DefaultIdleInterval is how long the loop sleeps when there is nothing to do.
	DefaultIdleInterval = 10 * time.Millisecond
)

// ErrStopped is returned by Submit when the loop is no longer running.
var ErrStopped = errors.New("control loop stopped")

// Sensor supplies measurements.
type Sensor interface {
	Read() (sample.Sample, error)
}

// Reporter pushes snapshots to the remote targets.
type Reporter interface {
	SendAll(ctx context.Context, hosts []string, snap sample.Snapshot, deviceID string) error
}

// Mirror republishes snapshot documents.
type Mirror interface {
	Publish(deviceID string, doc any) error
}

// Config contains loop cadences.
type Config struct {
	LoopInterval   time.Duration
	SendInterval   time.Duration
	RebootInterval time.Duration
	IdleInterval   time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithMirror publishes every pushed snapshot to m as well.
func WithMirror(m Mirror) Option {
	return func(l *Loop) {
		l.mirror = m
	}
}

// WithMetrics records loop activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

type request struct {
	fn   func(*State)
	done chan struct{}
}

// Loop is the cooperative control loop. It owns State and runs measurement,
// remote push, restart checks and queued HTTP work on a single goroutine.
type Loop struct {
	cfg       Config
	state     *State
	clock     clock.Clock
	sensor    Sensor
	indicator indicator.Indicator
	reporter  Reporter
	mirror    Mirror
	metrics   *metrics.Metrics
	logger    *slog.Logger

	requests chan request
	stopped  chan struct{}

	ticked   bool
	nextTick time.Duration
	pushed   bool
	nextPush time.Duration
}

// NewLoop creates a control loop over state.
func NewLoop(cfg Config, state *State, clk clock.Clock, sensor Sensor, ind indicator.Indicator, reporter Reporter, opts ...Option) *Loop {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = DefaultLoopInterval
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = DefaultSendInterval
	}
	if cfg.RebootInterval <= 0 {
		cfg.RebootInterval = DefaultRebootInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}

	l := &Loop{
		cfg:       cfg,
		state:     state,
		clock:     clk,
		sensor:    sensor,
		indicator: ind,
		reporter:  reporter,
		logger:    slog.Default(),
		requests:  make(chan request),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run steps the loop until a restart is due or ctx is done. Between steps it
// waits for HTTP work or the idle timer.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)

	idle := time.NewTimer(l.cfg.IdleInterval)
	defer idle.Stop()

	for {
		if err := l.Step(ctx); err != nil {
			return err
		}

		idle.Reset(l.cfg.IdleInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-l.requests:
			if err := l.checkRestart(l.clock.Now()); err != nil {
				return err
			}
			l.serve(r)
		case <-idle.C:
		}
	}
}

// Step runs one iteration: restart checks, queued requests, then the
// measurement tick when it is due. It returns ErrRestart when the device
// must restart; nothing else stops the loop.
func (l *Loop) Step(ctx context.Context) error {
	now := l.clock.Now()
	if err := l.checkRestart(now); err != nil {
		return err
	}

	l.drain()

	if l.ticked && now < l.nextTick {
		return nil
	}
	l.tick(ctx, now)

	return nil
}

// Submit runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Submit(ctx context.Context, fn func(*State)) error {
	r := request{fn: fn, done: make(chan struct{})}

	select {
	case l.requests <- r:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-r.done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now returns the loop clock reading.
func (l *Loop) Now() time.Duration {
	return l.clock.Now()
}

func (l *Loop) checkRestart(now time.Duration) error {
	if now >= l.cfg.RebootInterval {
		return fmt.Errorf("%w: uptime %s reached reboot interval", ErrRestart, now)
	}
	if l.state.Gate != nil && l.state.Gate.RestartDue(now) {
		return fmt.Errorf("%w: configuration reset", ErrRestart)
	}
	return nil
}

func (l *Loop) drain() {
	for {
		select {
		case r := <-l.requests:
			l.serve(r)
		default:
			return
		}
	}
}

func (l *Loop) serve(r request) {
	defer close(r.done)
	r.fn(l.state)
}

func (l *Loop) tick(ctx context.Context, now time.Duration) {
	l.indicator.Blink(indicator.Liveness)
	l.measure()

	if !l.pushed || now >= l.nextPush {
		l.push(ctx)
		l.pushed = true
		l.nextPush = now + l.cfg.SendInterval
	}

	l.metrics.Uptime(now.Seconds())
	l.ticked = true
	l.nextTick = l.clock.Now() + l.cfg.LoopInterval
}

func (l *Loop) measure() {
	est := l.state.Estimator

	s, err := l.sensor.Read()
	if err != nil {
		// Treated as a missing sample
		s = sample.Sample{Timestamp: time.Now()}
	}
	if uerr := est.Update(s); uerr != nil {
		if err == nil {
			err = uerr
		}
		l.logger.Warn("measurement failed", slog.Any("error", err))
		l.indicator.Blink(indicator.SensorFailure)
		l.metrics.SensorFailure()
		return
	}

	snap := est.Snapshot(0)
	l.metrics.ObserveSample(snap)

	attrs := make([]any, 0, 2*len(snap.Quantities())+1)
	for _, q := range snap.Quantities() {
		cur, _ := s.Value(q)
		avg, _ := snap.Average(q)
		attrs = append(attrs, slog.Group(q.Key(),
			slog.Float64("current", float64(cur)),
			slog.Float64("average", float64(avg)),
		))
	}
	attrs = append(attrs, slog.Int("count", snap.Count))
	l.logger.Info("measured", attrs...)
}

func (l *Loop) push(ctx context.Context) {
	snap := l.state.Snapshot()

	if err := l.reporter.SendAll(ctx, l.state.Targets[:], snap, l.state.DeviceID); err != nil {
		l.logger.Debug("push cycle incomplete", slog.Any("error", err))
	}

	if l.mirror != nil {
		if err := l.mirror.Publish(l.state.DeviceID, l.state.Document(snap)); err != nil {
			l.logger.Debug("mirror failed", slog.Any("error", err))
		}
	}
}
