// Package ipc implements the small rendezvous protocol the coordinator and
// its detached helpers use to hand a single open file descriptor (a mounted
// /dev/fuse connection, or eventually a status byte) across the boundary
// between the unprivileged parent and the namespace-entering child.
package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SocketPair opens a connected pair of Unix domain sockets suitable for
// SCM_RIGHTS fd passing, returned as *os.File so callers can use them with
// the rest of the standard library (os/exec's ExtraFiles, in particular).
func SocketPair() (parent, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "ipc-parent"), os.NewFile(uintptr(fds[1]), "ipc-child"), nil
}

// SendFD sends fd across sock as SCM_RIGHTS ancillary data, along with a
// single marker byte as the ordinary payload (some platforms require at
// least one byte of real data to carry ancillary data at all).
func SendFD(sock *os.File, fd int) error {
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(int(sock.Fd()), []byte{0}, rights, nil, 0)
}

// RecvFD blocks for one message on sock and returns the single file
// descriptor it carried.
func RecvFD(sock *os.File) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(int(sock.Fd()), buf, oob, 0)
	if err != nil {
		return -1, fmt.Errorf("ipc: recvmsg: %w", err)
	}
	if n == 0 {
		return -1, fmt.Errorf("ipc: recvmsg: peer closed without sending a message")
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("ipc: parse control message: %w", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], nil
		}
	}
	return -1, fmt.Errorf("ipc: recvmsg: no file descriptor in control message")
}

// SendByte writes a single token byte, used for the rendezvous handshakes
// where no fd needs to travel -- e.g. "sub-id mapping is in place" or
// "mount is ready, proceed".
func SendByte(sock *os.File, b byte) error {
	_, err := sock.Write([]byte{b})
	return err
}

// RecvByte blocks for a single token byte.
func RecvByte(sock *os.File) (byte, error) {
	buf := make([]byte, 1)
	n, err := sock.Read(buf)
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("ipc: expected 1 byte, got %d", n)
	}
	return buf[0], nil
}
