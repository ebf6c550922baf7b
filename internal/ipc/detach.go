package ipc

import (
	"fmt"
	"os"
	"os/exec"
)

// Detach re-execs the current binary with hiddenArg as argv[1] and extra as
// inherited file descriptors starting at fd 3, then returns immediately
// without waiting -- the Go runtime's threads make a literal fork() unsafe,
// so this stands in for the reference implementation's double-fork: one
// exec instead of two forks, landing in a process with no parent relationship
// to wait on (os/exec leaves it reparented to init once this process exits
// or moves on, same end state the original's setsid() grandchild achieves).
func Detach(hiddenArg string, extra ...*os.File) (*os.Process, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("ipc: resolve own executable path: %w", err)
	}

	cmd := exec.Command(self, hiddenArg)
	cmd.ExtraFiles = extra
	cmd.Stdin = nil
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = detachSysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ipc: re-exec %s %s: %w", self, hiddenArg, err)
	}
	return cmd.Process, nil
}
