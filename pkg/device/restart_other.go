//go:build !unix

package device

import "errors"

// Restart is not supported here; the service manager must restart the process.
func (r *ExecRestarter) Restart() error {
	return errors.New("in-place restart not supported on this platform")
}
