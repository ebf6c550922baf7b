package ipc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSocketPairByteRendezvous(t *testing.T) {
	parent, child, err := SocketPair()
	require.NoError(t, err)
	defer parent.Close()
	defer child.Close()

	done := make(chan error, 1)
	go func() {
		done <- SendByte(parent, 'r')
	}()

	b, err := RecvByte(child)
	require.NoError(t, err)
	require.Equal(t, byte('r'), b)
	require.NoError(t, <-done)
}

func TestSocketPairFDPassing(t *testing.T) {
	parent, child, err := SocketPair()
	require.NoError(t, err)
	defer parent.Close()
	defer child.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "ipc-fdpass")
	require.NoError(t, err)
	defer tmp.Close()

	const marker = "hello from the sent fd"
	_, err = tmp.WriteString(marker)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- SendFD(parent, int(tmp.Fd()))
	}()

	fd, err := RecvFD(child)
	require.NoError(t, err)
	require.NoError(t, <-done)

	received := os.NewFile(uintptr(fd), "received")
	defer received.Close()

	buf := make([]byte, len(marker))
	_, err = received.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, marker, string(buf))
}

func TestRecvByteOnClosedSocketErrors(t *testing.T) {
	parent, child, err := SocketPair()
	require.NoError(t, err)
	defer child.Close()

	require.NoError(t, parent.Close())

	_, err = RecvByte(child)
	require.Error(t, err)
}
