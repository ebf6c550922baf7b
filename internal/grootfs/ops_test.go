package grootfs

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := New(dir, 65536, 65536)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestMkdirStampsClaimAndRealBits(t *testing.T) {
	fs := newTestFS(t)

	attr, err := fs.Mkdir("sub", 0o700, 1000, 1000)
	require.NoError(t, err)
	require.Equal(t, uint32(1000), attr.UID)
	require.Equal(t, uint32(1000), attr.GID)
	require.Equal(t, uint32(0o700), attr.Mode&0o7777)

	var st unix.Stat_t
	require.NoError(t, unix.Fstatat(fs.basefd, "sub", &st, unix.AT_SYMLINK_NOFOLLOW))
	require.Equal(t, uint32(0o755), st.Mode&0o7777)
}

func TestCreateThenGetattrSharesClaim(t *testing.T) {
	fs := newTestFS(t)

	fh, attr, err := fs.Create("file.txt", uint32(os.O_WRONLY|os.O_CREATE), 0o640, 1000, 1000)
	require.NoError(t, err)
	require.Equal(t, uint32(0o640), attr.Mode&0o7777)
	fs.Release(fh)

	got, err := fs.Getattr("file.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(1000), got.UID)
	require.Equal(t, uint32(0o640), got.Mode&0o7777)
}

func TestCreateWithCallerOExclStampsClaim(t *testing.T) {
	fs := newTestFS(t)

	// The caller supplying its own O_EXCL must not be confused with
	// grootfs's internal create-detection trick: the file is still newly
	// created here, so a claim must be stamped just like the O_CREAT-only
	// case above.
	fh, attr, err := fs.Create("excl.txt", unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL, 0o640, 1000, 1000)
	require.NoError(t, err)
	require.Equal(t, uint32(1000), attr.UID)
	require.Equal(t, uint32(0o640), attr.Mode&0o7777)
	fs.Release(fh)

	got, err := fs.Getattr("excl.txt")
	require.NoError(t, err)
	require.Equal(t, uint32(1000), got.UID)
	require.Equal(t, uint32(1000), got.GID)
	require.Equal(t, uint32(0o640), got.Mode&0o7777)
}

func TestChmodUpdatesClaimNotRealBits(t *testing.T) {
	fs := newTestFS(t)
	_, _, err := fs.Create("file.txt", uint32(os.O_WRONLY|os.O_CREATE), 0o640, 0, 0)
	require.NoError(t, err)

	attr, err := fs.Chmod("file.txt", 0o777)
	require.NoError(t, err)
	require.Equal(t, uint32(0o777), attr.Mode&0o7777)

	var st unix.Stat_t
	require.NoError(t, unix.Fstatat(fs.basefd, "file.txt", &st, unix.AT_SYMLINK_NOFOLLOW))
	require.Equal(t, uint32(0o755), st.Mode&0o7777, "real bits follow fixed policy, not the claim")
}

func TestChownCapsIdentityAboveMax(t *testing.T) {
	fs := newTestFS(t)
	fs.maxUID = 100
	_, _, err := fs.Create("file.txt", uint32(os.O_WRONLY|os.O_CREATE), 0o640, 0, 0)
	require.NoError(t, err)

	attr, err := fs.Chown("file.txt", 5000, ^uint32(0))
	require.NoError(t, err)
	require.Equal(t, uint32(0), attr.UID)
}

func TestUnlinkRemovesSymlinkSidecar(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Symlink("target", "link", 1000, 1000)
	require.NoError(t, err)

	info, exists, err := fs.statPath("link", false)
	require.NoError(t, err)
	require.True(t, exists)
	sidecar := info.sidecar
	fs.close(info)
	require.NotEmpty(t, sidecar)

	_, err = os.Lstat(fs.pathFor(sidecar))
	require.NoError(t, err)

	require.NoError(t, fs.Unlink("link"))

	_, err = os.Lstat(fs.pathFor(sidecar))
	require.True(t, os.IsNotExist(err))
}

func TestReaddirHidesSidecarFiles(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Symlink("target", "link", 1000, 1000)
	require.NoError(t, err)

	entries, err := fs.Readdir("")
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["link"])
	for name := range names {
		require.False(t, IsSidecar(name))
	}
}

func TestAccessAlwaysGrantsWrite(t *testing.T) {
	fs := newTestFS(t)
	_, _, err := fs.Create("file.txt", uint32(os.O_WRONLY|os.O_CREATE), 0o000, 0, 0)
	require.NoError(t, err)

	require.NoError(t, fs.Access("file.txt", unix.W_OK))
}

func TestListxattrStripsPrefix(t *testing.T) {
	fs := newTestFS(t)
	_, _, err := fs.Create("file.txt", uint32(os.O_WRONLY|os.O_CREATE), 0o640, 0, 0)
	require.NoError(t, err)

	require.NoError(t, fs.Setxattr("file.txt", "custom", []byte("v"), 0))

	names, err := fs.Listxattr("file.txt")
	require.NoError(t, err)
	require.Contains(t, names, "custom")
}

func (fs *FS) pathFor(name string) string {
	return "/proc/self/fd/" + strconv.Itoa(fs.basefd) + "/" + name
}
