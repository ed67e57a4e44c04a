package provision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/itohio/gotmep/pkg/store"
)

// DefaultTimeout is how long the interactive portal waits for input.
const DefaultTimeout = 300 * time.Second

// ErrTimeout is returned when the portal closes without input.
var ErrTimeout = errors.New("provisioning timed out")

// Handlers are the hooks invoked by a provisioning run.
type Handlers struct {
	// OnEnter is called once when the portal opens with its public name.
	OnEnter func(portal string)
	// OnSave is called synchronously with the collected settings.
	OnSave func(store.Settings) error
}

func (h Handlers) enter(portal string) {
	if h.OnEnter != nil {
		h.OnEnter(portal)
	}
}

func (h Handlers) save(s store.Settings) error {
	if h.OnSave == nil {
		return nil
	}
	if err := h.OnSave(s); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Service collects settings from the user.
type Service interface {
	Run(ctx context.Context, portal string, defaults store.Settings, h Handlers) error
}

// Ensure implementations satisfy Service.
var (
	_ Service = (*Static)(nil)
	_ Service = (*Console)(nil)
)

// Static supplies preconfigured settings without user interaction. Empty
// fields fall back to the defaults.
type Static struct {
	Hosts []string
	PIN   string
}

// Run applies the static settings.
func (s *Static) Run(_ context.Context, portal string, defaults store.Settings, h Handlers) error {
	h.enter(portal)

	settings := defaults
	if len(s.Hosts) > 0 {
		settings.Hosts = store.HostsFrom(s.Hosts)
	}
	if s.PIN != "" {
		settings.PIN = s.PIN
	}

	return h.save(settings)
}

// Console prompts for settings on a text terminal, typically the serial
// console of the device.
type Console struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewConsole creates a console portal.
func NewConsole(in io.Reader, out io.Writer, timeout time.Duration, logger *slog.Logger) *Console {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{in: in, out: out, timeout: timeout, logger: logger}
}

// Run prompts for each host and the PIN. An empty answer keeps the default.
// The whole session is bounded by the portal timeout.
func (c *Console) Run(ctx context.Context, portal string, defaults store.Settings, h Handlers) error {
	h.enter(portal)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ask := func(prompt, def string) (string, error) {
		fmt.Fprintf(c.out, "%s [%s]: ", prompt, def)
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", fmt.Errorf("console closed: %w", io.ErrUnexpectedEOF)
			}
			if line = strings.TrimSpace(line); line != "" {
				return line, nil
			}
			return def, nil
		}
	}

	fmt.Fprintf(c.out, "Configuration portal %s\n", portal)

	settings := defaults
	for i := range settings.Hosts {
		v, err := ask(fmt.Sprintf("Remote host #%d (- to disable)", i+1), defaults.Hosts[i])
		if err != nil {
			return err
		}
		if v == "-" {
			v = ""
		}
		settings.Hosts[i] = v
	}

	pin, err := ask("Configuration PIN", defaults.PIN)
	if err != nil {
		return err
	}
	settings.PIN = pin

	c.logger.Info("settings collected", slog.Any("hosts", settings.Hosts[:]))
	return h.save(settings)
}
