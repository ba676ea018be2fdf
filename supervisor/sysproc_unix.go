//go:build linux || darwin

package supervisor

import "syscall"

// sysProcAttr isolates the child into its own process group so that
// signal escalation (SIGTERM/SIGKILL) reaches any grandchildren it spawns,
// not just the direct child.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
