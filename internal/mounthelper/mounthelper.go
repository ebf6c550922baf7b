// Package mounthelper implements the Mount Helper: a detached process that
// receives an already-mounted FUSE device descriptor for each wrap
// directory over SCM_RIGHTS and runs a grootfs session against it, entirely
// outside the target command's namespaces.
package mounthelper

import (
	"fmt"
	"os"
	"syscall"

	"github.com/groot-project/groot/internal/fuseproto"
	"github.com/groot-project/groot/internal/grootfs"
	"github.com/groot-project/groot/internal/ipc"
	"github.com/groot-project/groot/pkg/grootlog"
)

// DoneByte is sent back once every wrap directory's FUSE session has
// started (or been permanently skipped because its directory couldn't be
// opened up front).
const DoneByte byte = 'm'

// WrapRequest is one wrap directory the coordinator wants faked, already
// resolved to an open directory fd for nicer error reporting before the
// process detaches -- opening it late, inside the detached helper, would
// surface failures nowhere the caller could see them.
type WrapRequest struct {
	Path string
	Fd   int
}

// OpenWrapDirs opens every path in paths, synchronously, so a bad wrap
// directory fails loudly before any forking happens. Entries that fail to
// open are dropped with a warning rather than aborting the whole run,
// matching the reference implementation's "ignore and skip" behavior for
// individual wrapdirs.
func OpenWrapDirs(paths []string) []WrapRequest {
	var reqs []WrapRequest
	for _, p := range paths {
		// A raw fd rather than an *os.File: the caller owns it from here on,
		// and no finalizer may close it behind the caller's back.
		fd, err := syscall.Open(p, syscall.O_RDONLY|syscall.O_CLOEXEC, 0)
		if err != nil {
			grootlog.Warnf("skipping wrap directory %s: %v", p, err)
			continue
		}
		reqs = append(reqs, WrapRequest{Path: p, Fd: fd})
	}
	return reqs
}

// Run is the Mount Helper's body. For each wrap in order, it receives the
// FUSE device fd the coordinator mounted at that path and starts a grootfs
// session serving it in its own goroutine; once every session has started
// it reports back over sock and returns, leaving the sessions running for
// the lifetime of this detached process.
func Run(sock *os.File, wraps []WrapRequest, maxUID, maxGID uint32) error {
	for _, w := range wraps {
		fd, err := ipc.RecvFD(sock)
		if err != nil {
			return fmt.Errorf("mounthelper: receive fuse fd for %s: %w", w.Path, err)
		}

		fs := grootfs.NewFromFD(w.Fd, maxUID, maxGID)

		conn := fuseproto.NewConn(os.NewFile(uintptr(fd), "/dev/fuse"))
		sess := grootfs.NewSession(conn, fs)

		go func(path string) {
			if err := sess.Serve(); err != nil {
				grootlog.Errorf("fuse session for %s exited: %v", path, err)
			}
		}(w.Path)
	}

	return ipc.SendByte(sock, DoneByte)
}
