package report

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gotmep/pkg/clock"
	"github.com/itohio/gotmep/pkg/indicator"
	"github.com/itohio/gotmep/pkg/metrics"
	"github.com/itohio/gotmep/pkg/sample"
)

const (
	// DefaultPort is the remote HTTPS port.
	DefaultPort = 443
	// DefaultConnectTimeout bounds dialing and the TLS handshake.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultResponseTimeout bounds the wait for the first response byte.
	DefaultResponseTimeout = 5 * time.Second
	// DefaultPollInterval is the read deadline of one poll.
	DefaultPollInterval = 10 * time.Millisecond
)

var (
	// ErrConnect is returned when the encrypted connection cannot be established.
	ErrConnect = errors.New("connect failed")
	// ErrResponseTimeout is returned when no response byte arrives before the deadline.
	ErrResponseTimeout = errors.New("response timeout")
)

// Dialer opens connections to remote hosts.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Config contains reporter parameters.
type Config struct {
	Port            int
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	PollInterval    time.Duration
	UserAgent       string
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithDialer replaces the TLS dialer.
func WithDialer(d Dialer) Option {
	return func(r *Reporter) {
		r.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// WithMetrics records push outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reporter) {
		r.metrics = m
	}
}

// Reporter pushes snapshots to remote collectors with one short-lived
// request per host. Failures are signaled and not retried; the next push
// cycle is the retry.
type Reporter struct {
	cfg       Config
	clock     clock.Clock
	indicator indicator.Indicator
	dialer    Dialer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Reporter. Zero config values fall back to the defaults.
func New(cfg Config, clk clock.Clock, ind indicator.Indicator, opts ...Option) *Reporter {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	r := &Reporter{
		cfg:       cfg,
		clock:     clk,
		indicator: ind,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.dialer == nil {
		r.dialer = &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: cfg.ConnectTimeout},
			// Certificate chains cannot be validated on the device.
			Config: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	return r
}

// SendAll pushes snap to every host in order. A failure on one host does not
// stop the others; the returned error joins all failures.
func (r *Reporter) SendAll(ctx context.Context, hosts []string, snap sample.Snapshot, deviceID string) error {
	var errs []error
	for _, host := range hosts {
		if err := r.Send(ctx, host, snap, deviceID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send pushes snap to host. An empty host is disabled and succeeds without
// touching the network. Success only requires one response byte.
func (r *Reporter) Send(ctx context.Context, host string, snap sample.Snapshot, deviceID string) error {
	if host == "" {
		r.metrics.Push(metrics.PushDisabled)
		return nil
	}

	path := Path(snap)
	logger := r.logger.With(slog.String("host", host), slog.String("path", path))
	logger.Debug("pushing values")

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	conn, err := r.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(r.cfg.Port)))
	cancel()
	if err != nil {
		logger.Warn("connect failed", slog.Any("error", err))
		r.indicator.Blink(indicator.ConnectFailure)
		r.metrics.Push(metrics.PushConnect)
		return fmt.Errorf("%w: %s: %v", ErrConnect, host, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(Request(path, host, deviceID, r.cfg.UserAgent))); err != nil {
		logger.Warn("write failed", slog.Any("error", err))
		r.indicator.Blink(indicator.ConnectFailure)
		r.metrics.Push(metrics.PushConnect)
		return fmt.Errorf("%w: %s: write: %v", ErrConnect, host, err)
	}

	if err := r.awaitResponse(ctx, conn); err != nil {
		logger.Warn("no response", slog.Any("error", err))
		r.indicator.Blink(indicator.ResponseTimeout)
		r.metrics.Push(metrics.PushTimeout)
		return fmt.Errorf("%s: %w", host, err)
	}

	logger.Info("values pushed")
	r.metrics.Push(metrics.PushOK)
	return nil
}

// awaitResponse polls conn until one byte arrives. The deadline is checked
// against the device clock once per poll.
func (r *Reporter) awaitResponse(ctx context.Context, conn net.Conn) error {
	deadline := r.clock.Now() + r.cfg.ResponseTimeout
	var buf [1]byte

	for {
		if r.clock.Now() > deadline {
			return ErrResponseTimeout
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := conn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval)); err != nil {
			return fmt.Errorf("%w: %v", ErrResponseTimeout, err)
		}
		n, err := conn.Read(buf[:])
		if n > 0 {
			return nil
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			// Peer closed without answering; no byte can arrive anymore
			return fmt.Errorf("%w: %v", ErrResponseTimeout, err)
		}
	}
}

// Path builds the request path carrying the snapshot as query parameters.
// Floating values use two decimals. Order: temp, rssi, humi, pres.
func Path(snap sample.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/?%s=%.2f&rssi=%d", sample.Temperature.Key(), snap.Temperature(), snap.RSSI)
	for _, q := range snap.Quantities() {
		if q == sample.Temperature {
			continue
		}
		v, _ := snap.Average(q)
		fmt.Fprintf(&b, "&%s=%.2f", q.Key(), v)
	}
	return b.String()
}

// Request renders the minimal HTTP/1.1 request sent to a collector.
func Request(path, host, deviceID, userAgent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	fmt.Fprintf(&b, "Device-Id: %s\r\n", deviceID)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")
	return b.String()
}
