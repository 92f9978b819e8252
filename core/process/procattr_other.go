//go:build !linux

package process

import "syscall"

// sysProcAttr places the child into a new process group. Pdeathsig is
// Linux-only, so other unix targets only get the group isolation.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
