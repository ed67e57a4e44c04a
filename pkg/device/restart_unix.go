//go:build unix

package device

import "syscall"

// Restart execs the binary in place. It only returns on failure.
func (r *ExecRestarter) Restart() error {
	return syscall.Exec(r.Path, r.Args, r.Env)
}
