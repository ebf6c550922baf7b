package privmap

import (
	"testing"

	"github.com/groot-project/groot/internal/ipc"
	"github.com/groot-project/groot/internal/subid"
	"github.com/stretchr/testify/require"
)

// Run's own newuidmap/newgidmap invocation needs a real setuid helper and a
// real target namespace to succeed against, neither available in a unit
// test. What is worth covering here is that Run correctly waits for ReadyByte before doing
// anything else, and surfaces a clear error when the mapping helper binary
// isn't on PATH rather than hanging or panicking.
func TestRunWaitsForReadyByteThenFailsWithoutHelperBinary(t *testing.T) {
	coordinatorSock, helperSock, err := ipc.SocketPair()
	require.NoError(t, err)
	defer coordinatorSock.Close()
	defer helperSock.Close()

	table := subid.Table{{NSIDStart: 0, HostIDStart: 1000, Length: 1}}

	done := make(chan error, 1)
	go func() {
		done <- Run(helperSock, 1, table, table)
	}()

	// Run must not proceed to invoke newuidmap until it has received the
	// ready byte -- send it now and expect a failure from the missing
	// setuid helper (this test environment has no newuidmap on PATH),
	// not a hang.
	require.NoError(t, ipc.SendByte(coordinatorSock, ReadyByte))

	err = <-done
	require.Error(t, err)
}

func TestRunFailsIfSocketClosedBeforeReady(t *testing.T) {
	_, helperSock, err := ipc.SocketPair()
	require.NoError(t, err)
	require.NoError(t, helperSock.Close())

	table := subid.Table{{NSIDStart: 0, HostIDStart: 1000, Length: 1}}
	err = Run(helperSock, 1, table, table)
	require.Error(t, err)
}
