//go:build unix

package session

import (
	"errors"
	"os/exec"
	"syscall"
)

// Process groups are first-class here, so group signaling and the interrupt
// signal bridge are available.
const hasProcessGroups = true

func shellCommand(command string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", command)
}

// setProcessGroup places the interpreter in its own process group, so that
// interrupt and kill signals reach the interpreter and everything it spawned
// without also hitting the host process.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGINT)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
