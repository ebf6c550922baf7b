// Package coordinator implements the Entry Coordinator: the process that
// enters a user+mount namespace, arranges for its uid/gid mappings and its
// wrap directories' FUSE overlays to be set up by helper processes running
// outside that namespace, raises ambient capabilities, and finally execs
// the target command in its place.
package coordinator

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"syscall"

	"github.com/groot-project/groot/internal/capset"
	"github.com/groot-project/groot/internal/ipc"
	"github.com/groot-project/groot/internal/mounthelper"
	"github.com/groot-project/groot/internal/privmap"
	"github.com/groot-project/groot/internal/subid"
	"github.com/groot-project/groot/pkg/grootlog"
	"golang.org/x/sys/unix"
)

const (
	subuidPath = "/etc/subuid"
	subgidPath = "/etc/subgid"
)

// PrivmapHelperArg and MountHelperArg are the hidden re-exec subcommands
// cmd/groot dispatches on before doing any of its normal flag parsing --
// how the detached helper processes started by Detach come back to life
// as this same binary rather than a fork of an unsafe-to-fork Go runtime.
const (
	PrivmapHelperArg = "groot-internal-privmap-helper"
	MountHelperArg   = "groot-internal-mount-helper"
)

// Options configures one launch.
type Options struct {
	WrapDirs []string
	Command  []string
}

func resolveUsername() string {
	if u := os.Getenv("GROOT_USER"); u != "" {
		return u
	}
	// Avoid triggering NSS lookups from contexts (like an LD_PRELOAD
	// constructor) where that can deadlock or crash; a failure here just
	// means limited user/group support, not a fatal error.
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// Enter performs every step of entering a faked-privilege namespace short of
// replacing the calling process: unsharing the user+mount namespaces,
// arranging their uid/gid mappings and wrap-directory FUSE overlays through
// the detached helpers, and raising ambient capabilities. Unlike Run, it
// returns normally on success, leaving the caller's own control flow intact
// -- this is what lets cmd/groot-preload fake the current process's
// namespace from an LD_PRELOAD constructor and then let that process's real
// main continue, rather than exec'ing a replacement.
func Enter(wrapDirs []string) error {
	realUID := uint32(os.Getuid())
	realGID := uint32(os.Getgid())
	mainPID := os.Getpid()

	username := resolveUsername()
	uidTable := subid.BuildUIDTable(subuidPath, username, realUID)
	gidTable := subid.BuildGIDTable(subgidPath, username, realGID)

	wraps := mounthelper.OpenWrapDirs(wrapDirs)

	var mountSock *os.File
	if len(wraps) > 0 {
		sock, err := startMountHelper(wraps, uidTable.MaxID(), gidTable.MaxID())
		if err != nil {
			return err
		}
		mountSock = sock
	}

	privSock, err := startPrivmapHelper(mainPID, uidTable, gidTable)
	if err != nil {
		return err
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("coordinator: prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}

	if err := unix.Unshare(unix.CLONE_NEWNS | unix.CLONE_NEWUSER); err != nil {
		return fmt.Errorf("coordinator: unshare namespaces: %w", err)
	}

	if err := ipc.SendByte(privSock, privmap.ReadyByte); err != nil {
		return fmt.Errorf("coordinator: signal privmap helper: %w", err)
	}
	if _, err := ipc.RecvByte(privSock); err != nil {
		return fmt.Errorf("coordinator: uid/gid mapping did not complete: %w", err)
	}

	if len(wraps) > 0 {
		for _, w := range wraps {
			dev, err := mountFuse(w.Path)
			if err != nil {
				return err
			}
			if err := ipc.SendFD(mountSock, int(dev.Fd())); err != nil {
				dev.Close()
				return fmt.Errorf("coordinator: send fuse fd for %s: %w", w.Path, err)
			}
			dev.Close()
		}
		if _, err := ipc.RecvByte(mountSock); err != nil {
			return fmt.Errorf("coordinator: mount helper did not confirm setup: %w", err)
		}
	}

	if err := capset.RaiseAmbient(); err != nil {
		return fmt.Errorf("coordinator: raise ambient capabilities: %w", err)
	}

	return nil
}

// Run performs Enter and then execs opts.Command in the resulting
// namespace. It does not return on success: the target command replaces
// this process via execve. This is cmd/groot's entry point, which launches
// a fresh command rather than faking the namespace of an already-running
// one.
func Run(opts Options) error {
	if len(opts.Command) == 0 {
		return fmt.Errorf("coordinator: no command given")
	}
	binPath, err := lookPathIn(opts.Command[0])
	if err != nil {
		return err
	}

	if err := Enter(opts.WrapDirs); err != nil {
		return err
	}

	grootlog.Debugf("execve %s %v", binPath, opts.Command)
	return syscall.Exec(binPath, opts.Command, os.Environ())
}

func startPrivmapHelper(targetPID int, uidTable, gidTable subid.Table) (*os.File, error) {
	parent, child, err := ipc.SocketPair()
	if err != nil {
		return nil, err
	}

	os.Setenv("GROOT_TARGET_PID", fmt.Sprintf("%d", targetPID))
	os.Setenv("GROOT_UIDMAP", uidTable.Encode())
	os.Setenv("GROOT_GIDMAP", gidTable.Encode())

	proc, err := ipc.Detach(PrivmapHelperArg, child)
	child.Close()
	if err != nil {
		return nil, fmt.Errorf("coordinator: start privmap helper: %w", err)
	}
	proc.Release()

	return parent, nil
}

func startMountHelper(wraps []mounthelper.WrapRequest, maxUID, maxGID uint32) (*os.File, error) {
	parent, child, err := ipc.SocketPair()
	if err != nil {
		return nil, err
	}

	extra := []*os.File{child}
	for _, w := range wraps {
		extra = append(extra, os.NewFile(uintptr(w.Fd), w.Path))
	}

	os.Setenv("GROOT_WRAP_PATHS", encodeWrapPaths(wraps))
	os.Setenv("GROOT_MAX_UID", fmt.Sprintf("%d", maxUID))
	os.Setenv("GROOT_MAX_GID", fmt.Sprintf("%d", maxGID))

	proc, err := ipc.Detach(MountHelperArg, extra...)
	child.Close()
	if err != nil {
		return nil, fmt.Errorf("coordinator: start mount helper: %w", err)
	}
	proc.Release()

	return parent, nil
}

func encodeWrapPaths(wraps []mounthelper.WrapRequest) string {
	s := ""
	for i, w := range wraps {
		if i > 0 {
			s += ":"
		}
		s += w.Path
	}
	return s
}

func lookPathIn(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("coordinator: %s not found in PATH", name)
}
