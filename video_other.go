//go:build !unix

package pinbox

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func (ep *execProcess) Interrupt() error {
	return ep.cmd.Process.Signal(os.Interrupt)
}

func (ep *execProcess) Kill() error {
	return ep.cmd.Process.Kill()
}
