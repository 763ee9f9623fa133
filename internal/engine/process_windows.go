//go:build windows

package engine

import (
	"os/exec"
)

func configureProcAttr(cmd *exec.Cmd) {}

// interruptProcess kills the runner; Windows has no process group interrupt.
func interruptProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
