//go:build !windows

package engine

import (
	"os/exec"
	"syscall"
)

// configureProcAttr runs the runner in its own process group so that the
// interrupt reaches the runner's children too.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// interruptProcess sends SIGINT to the runner's process group, falling back
// to the runner alone.
func interruptProcess(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGINT); err != nil {
		return syscall.Kill(pid, syscall.SIGINT)
	}
	return nil
}
