//go:build unix

package pinbox

import (
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (ep *execProcess) Interrupt() error {
	return syscall.Kill(-ep.cmd.Process.Pid, syscall.SIGINT)
}

func (ep *execProcess) Kill() error {
	return syscall.Kill(-ep.cmd.Process.Pid, syscall.SIGKILL)
}
