package grootfs

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FS is one mounted permission-faking overlay, rooted at a real directory
// opened once as basefd. Every path operation resolves relative to that fd
// with the *at() syscall family, so grootfs never has to chdir and stays
// safe to run several instances of concurrently in one process.
type FS struct {
	basefd int
	maxUID uint32
	maxGID uint32

	handles sync.Map // uint64 fh -> *os.File
	nextFH  uint64

	Nodes *NodeTable
}

// New opens root and returns an FS overlaying it. maxUID/maxGID bound the
// identities grootfs will report before capping them down to 0, normally
// the highest id mapped into the caller's user namespace.
//
// root must be opened before anything is FUSE-mounted on top of it: once
// grootfs's own mount covers the path, opening it again by path would
// resolve into the FUSE filesystem itself rather than the real directory
// underneath. Callers serving a live FUSE mount should use NewFromFD with
// an fd captured before the mount instead.
func New(root string, maxUID, maxGID uint32) (*FS, error) {
	fd, err := unix.Open(root, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("grootfs: open base directory %s: %w", root, err)
	}
	return NewFromFD(fd, maxUID, maxGID), nil
}

// NewFromFD wraps an already-open directory fd, taking ownership of it.
func NewFromFD(fd int, maxUID, maxGID uint32) *FS {
	return &FS{basefd: fd, maxUID: maxUID, maxGID: maxGID, Nodes: NewNodeTable()}
}

func (fs *FS) Close() error {
	return unix.Close(fs.basefd)
}

func (fs *FS) allocFH(f *os.File) uint64 {
	fh := atomic.AddUint64(&fs.nextFH, 1)
	fs.handles.Store(fh, f)
	return fh
}

func (fs *FS) file(fh uint64) (*os.File, bool) {
	v, ok := fs.handles.Load(fh)
	if !ok {
		return nil, false
	}
	return v.(*os.File), true
}

func (fs *FS) releaseFH(fh uint64) {
	if f, ok := fs.file(fh); ok {
		f.Close()
		fs.handles.Delete(fh)
	}
}

// procFdPath builds the /proc/self/fd/N reference libfuse itself uses to
// turn an (dirfd, name) pair into something lsetxattr/lgetxattr (which have
// no *at variant) can operate on without following unrelated symlinks.
func procFdPath(dirfd int, name string) string {
	if name == "" {
		return fmt.Sprintf("/proc/self/fd/%d", dirfd)
	}
	return fmt.Sprintf("/proc/self/fd/%d/%s", dirfd, name)
}

// openParentDir opens the parent directory of relpath and returns it along
// with the final path component, so callers can operate with *at syscalls
// scoped to fs.basefd.
func (fs *FS) openParentDir(relpath string) (dirfd int, base string, err error) {
	dir, base := splitPath(relpath)
	if dir == "" {
		return fs.basefd, base, nil
	}
	fd, err := unix.Openat(fs.basefd, dir, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, "", err
	}
	return fd, base, nil
}

func splitPath(p string) (dir, base string) {
	i := len(p) - 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func (fs *FS) closeParentDir(dirfd int) {
	if dirfd != fs.basefd {
		unix.Close(dirfd)
	}
}

// getFakeData reads the FakeRecord stored for (dirfd, name), tolerating the
// attribute simply not being set yet (a zero record, not an error).
func getFakeData(dirfd int, name string, allowNoent bool) (FakeRecord, error) {
	buf := make([]byte, recordSize)
	n, err := unix.Lgetxattr(procFdPath(dirfd, name), XattrName, buf)
	if err != nil {
		if err == unix.ENODATA || err == unix.ENOTSUP || (allowNoent && err == unix.ENOENT) {
			return FakeRecord{}, nil
		}
		return FakeRecord{}, err
	}
	return DecodeFakeRecord(buf[:n])
}

func getFakeDataFd(fd int) (FakeRecord, error) {
	buf := make([]byte, recordSize)
	n, err := unix.Fgetxattr(fd, XattrName, buf)
	if err != nil {
		if err == unix.ENODATA || err == unix.ENOTSUP {
			return FakeRecord{}, nil
		}
		return FakeRecord{}, err
	}
	return DecodeFakeRecord(buf[:n])
}

func setFakeData(dirfd int, name string, ensureExist bool, r FakeRecord) error {
	if ensureExist {
		fd, err := unix.Openat(dirfd, name, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY, 0666)
		if err == nil {
			unix.Close(fd)
		} else if err != unix.EEXIST {
			return err
		}
	}
	return unix.Lsetxattr(procFdPath(dirfd, name), XattrName, r.Encode(), 0)
}

func setFakeDataFd(fd int, r FakeRecord) error {
	return unix.Fsetxattr(fd, XattrName, r.Encode(), 0)
}

// pathInfo bundles everything an operation touching one path needs: the
// dirfd/basename pair (or backing fd if opened by handle), the real stat
// data and the decoded claim overlaid on top of it. Symlinks store their
// claim in a sidecar file keyed by device/inode rather than in their own
// (nonexistent) xattr.
type pathInfo struct {
	dirfd    int
	basename string
	fd       int // -1 unless resolved from an open handle
	sidecar  string
	stat     unix.Stat_t
	fake     FakeRecord
}

func (fs *FS) statPath(relpath string, allowNoent bool) (pathInfo, bool, error) {
	dirfd, base, err := fs.openParentDir(relpath)
	if err != nil {
		return pathInfo{}, false, err
	}
	info := pathInfo{dirfd: dirfd, basename: base, fd: -1}

	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, base, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		fs.closeParentDir(dirfd)
		if allowNoent && err == unix.ENOENT {
			return info, false, nil
		}
		return pathInfo{}, false, err
	}
	info.stat = st

	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		info.sidecar = SymlinkSidecarName(uint64(st.Dev), uint64(st.Ino))
		fake, err := getFakeData(fs.basefd, info.sidecar, true)
		if err != nil {
			fs.closeParentDir(dirfd)
			return pathInfo{}, false, err
		}
		info.fake = fake
	} else {
		fake, err := getFakeData(dirfd, base, allowNoent)
		if err != nil {
			fs.closeParentDir(dirfd)
			return pathInfo{}, false, err
		}
		info.fake = fake
	}

	return info, true, nil
}

func (fs *FS) updateFakeData(info pathInfo) error {
	if info.sidecar != "" {
		return setFakeData(fs.basefd, info.sidecar, true, info.fake)
	}
	if info.fd != -1 {
		return setFakeDataFd(info.fd, info.fake)
	}
	return setFakeData(info.dirfd, info.basename, false, info.fake)
}

func (fs *FS) close(info pathInfo) {
	fs.closeParentDir(info.dirfd)
}

// applyStat overlays info's claim onto its real stat and returns the
// uid/gid/mode grootfs should report to the kernel.
func (fs *FS) applyStat(info pathInfo) (uid, gid, mode uint32) {
	return Apply(info.fake, info.stat.Uid, info.stat.Gid, info.stat.Mode, fs.maxUID, fs.maxGID)
}
