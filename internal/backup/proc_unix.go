//go:build unix

package backup

import (
	"os/exec"
	"syscall"
)

// killProcessGroup makes a timeout kill the script and everything it spawned,
// so children such as pg_dump cannot keep the output pipes open.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
