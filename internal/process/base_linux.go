//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr sets Linux-specific process attributes on cmd.
//
// An attached child receives SIGTERM when its parent dies (Pdeathsig), so a
// killed test binary does not leave the server running. A detached child is
// placed in a new session instead so that it outlives the spawning command.
func configureSysProcAttr(cmd *exec.Cmd, detach bool) {
	if detach {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
	}
}
