//go:build !unix

package session

import (
	"errors"
	"os/exec"
)

// No process groups here: interrupts fall back to single-process signaling
// and the signal bridge is never installed.
const hasProcessGroups = false

func shellCommand(command string) *exec.Cmd {
	return exec.Command("cmd", "/c", command)
}

func setProcessGroup(cmd *exec.Cmd) {}

func interruptGroup(cmd *exec.Cmd) error {
	return errors.New("process-group interrupt unsupported on this platform")
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	return cmd.Process.Kill()
}
