package ipc

import "syscall"

// detachSysProcAttr gives the re-exec'd helper its own session, the same
// escape from the parent's controlling terminal setsid() buys the
// reference implementation's grandchild.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
