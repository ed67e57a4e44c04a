package device

import (
	"context"
	"os"
	"time"

	"github.com/itohio/gotmep/pkg/indicator"
)

// Restarter replaces the running process with a fresh one.
type Restarter interface {
	Restart() error
}

// ExecRestarter re-executes the current binary with the same arguments.
type ExecRestarter struct {
	Path string
	Args []string
	Env  []string
}

// NewExecRestarter captures the current executable and its arguments.
func NewExecRestarter() (*ExecRestarter, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &ExecRestarter{
		Path: exe,
		Args: os.Args,
		Env:  os.Environ(),
	}, nil
}

// Halt blinks the fatal pattern forever until ctx is done.
func Halt(ctx context.Context, ind indicator.Indicator, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		ind.Blink(indicator.Fatal)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
