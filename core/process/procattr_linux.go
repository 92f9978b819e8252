//go:build linux

package process

import "syscall"

// sysProcAttr places the child into a new process group whose PGID equals
// its PID, and asks the kernel to deliver SIGTERM to the child if the
// daemon itself dies first. Grounded on cli-tools-codetap's procattr_linux.go.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
