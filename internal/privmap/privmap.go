// Package privmap runs the setuid newuidmap/newgidmap helpers on behalf of
// a process that has already unshared a user namespace but, lacking
// CAP_SETUID/CAP_SETGID outside it, cannot write its own /proc/<pid>/uid_map.
package privmap

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/groot-project/groot/internal/ipc"
	"github.com/groot-project/groot/internal/subid"
	"github.com/groot-project/groot/pkg/grootlog"
)

// ReadyByte and DoneByte are the single-byte tokens exchanged over the
// rendezvous socket: the coordinator sends ReadyByte once its target pid
// exists and has unshared CLONE_NEWUSER, the helper replies DoneByte once
// both id maps are written (or the process dies trying).
const (
	ReadyByte byte = 'r'
	DoneByte  byte = 'd'
)

// Run is the Privilege-Map Helper's entire body, invoked in the detached
// process the coordinator starts through ipc.Detach. It blocks for the coordinator's ready signal,
// writes both id maps into targetPID's namespace via the newuidmap/newgidmap
// setuid binaries, then signals completion and exits -- there is nothing
// left for this process to do afterward.
func Run(sock *os.File, targetPID int, uidTable, gidTable subid.Table) error {
	if _, err := ipc.RecvByte(sock); err != nil {
		return fmt.Errorf("privmap: waiting for ready signal: %w", err)
	}

	if err := invoke("newuidmap", targetPID, uidTable); err != nil {
		return fmt.Errorf("privmap: newuidmap: %w", err)
	}
	if err := invoke("newgidmap", targetPID, gidTable); err != nil {
		return fmt.Errorf("privmap: newgidmap: %w", err)
	}

	grootlog.Debugf("wrote uid/gid maps for pid %d", targetPID)
	return ipc.SendByte(sock, DoneByte)
}

func invoke(bin string, pid int, table subid.Table) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", bin, err)
	}

	args := append([]string{strconv.Itoa(pid)}, table.Args()...)
	cmd := exec.Command(path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", bin, args, err, out)
	}
	return nil
}
