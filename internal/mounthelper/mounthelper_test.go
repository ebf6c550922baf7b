package mounthelper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/groot-project/groot/internal/ipc"
	"github.com/stretchr/testify/require"
)

func TestOpenWrapDirsSkipsMissingDirectories(t *testing.T) {
	good := t.TempDir()
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	reqs := OpenWrapDirs([]string{good, missing})
	require.Len(t, reqs, 1)
	require.Equal(t, good, reqs[0].Path)
	require.NotEqual(t, 0, reqs[0].Fd)

	unix := os.NewFile(uintptr(reqs[0].Fd), good)
	defer unix.Close()
	info, err := unix.Stat()
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestRunReceivesEachFuseFDAndReportsDone(t *testing.T) {
	dir := t.TempDir()
	wraps := OpenWrapDirs([]string{dir})
	require.Len(t, wraps, 1)
	defer os.NewFile(uintptr(wraps[0].Fd), dir).Close()

	coordinatorSock, helperSock, err := ipc.SocketPair()
	require.NoError(t, err)
	defer coordinatorSock.Close()
	defer helperSock.Close()

	// Stand in for the mounted /dev/fuse descriptor the coordinator would
	// normally hand over: any fd works for exercising the rendezvous
	// protocol itself, since Run only needs to receive *something* and
	// start a session goroutine against it.
	fakeDev, err := os.CreateTemp(t.TempDir(), "fake-fuse-dev")
	require.NoError(t, err)
	defer fakeDev.Close()

	done := make(chan error, 1)
	go func() {
		done <- ipc.SendFD(coordinatorSock, int(fakeDev.Fd()))
	}()

	require.NoError(t, Run(helperSock, wraps, 65536, 65536))
	require.NoError(t, <-done)

	b, err := ipc.RecvByte(coordinatorSock)
	require.NoError(t, err)
	require.Equal(t, DoneByte, b)
}
