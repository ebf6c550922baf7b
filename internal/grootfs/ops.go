package grootfs

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/groot-project/groot/internal/fuseproto"
	"golang.org/x/sys/unix"
)

func attrFromStat(st unix.Stat_t, uid, gid, mode uint32) fuseproto.Attr {
	return fuseproto.Attr{
		Ino:     st.Ino,
		Size:    uint64(st.Size),
		Blocks:  uint64(st.Blocks),
		Atime:   time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime:   time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime:   time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Mode:    (st.Mode &^ 0o7777) | (mode & 0o7777),
		Nlink:   uint32(st.Nlink),
		UID:     uid,
		GID:     gid,
		Rdev:    uint32(st.Rdev),
		Blksize: uint32(st.Blksize),
	}
}

// Getattr resolves relpath and returns its faked attribute.
func (fs *FS) Getattr(relpath string) (fuseproto.Attr, error) {
	info, exists, err := fs.statPath(relpath, false)
	if err != nil {
		return fuseproto.Attr{}, err
	}
	defer fs.close(info)
	if !exists {
		return fuseproto.Attr{}, unix.ENOENT
	}
	uid, gid, mode := fs.applyStat(info)
	return attrFromStat(info.stat, uid, gid, mode), nil
}

// Fgetattr is Getattr for an already-open file handle.
func (fs *FS) Fgetattr(fh uint64) (fuseproto.Attr, error) {
	f, ok := fs.file(fh)
	if !ok {
		return fuseproto.Attr{}, unix.EBADF
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return fuseproto.Attr{}, err
	}
	fake, err := getFakeDataFd(int(f.Fd()))
	if err != nil {
		return fuseproto.Attr{}, err
	}
	uid, gid, mode := Apply(fake, st.Uid, st.Gid, st.Mode, fs.maxUID, fs.maxGID)
	return attrFromStat(st, uid, gid, mode), nil
}

// Chmod stores a mode claim and forces the real on-disk bits to the fixed
// real-bits shape regardless of what was claimed.
func (fs *FS) Chmod(relpath string, mode uint32) (fuseproto.Attr, error) {
	info, exists, err := fs.statPath(relpath, false)
	if err != nil {
		return fuseproto.Attr{}, err
	}
	defer fs.close(info)
	if !exists {
		return fuseproto.Attr{}, unix.ENOENT
	}

	isDir := info.stat.Mode&unix.S_IFMT == unix.S_IFDIR
	realMode := RealMode(isDir, mode&unix.S_IXUSR != 0)

	// fchmodat cannot use AT_SYMLINK_NOFOLLOW on Linux; FUSE always
	// resolves the symlink before calling us here anyway, so this always
	// targets a real file or directory, never the link itself.
	if err := unix.Fchmodat(info.dirfd, info.basename, realMode, 0); err != nil {
		return fuseproto.Attr{}, err
	}

	info.fake.Mode = mode & 0o7777
	info.fake.Flags |= FlagModeSet
	if err := fs.updateFakeData(info); err != nil {
		return fuseproto.Attr{}, err
	}

	uid, gid, outMode := fs.applyStat(info)
	return attrFromStat(info.stat, uid, gid, outMode), nil
}

// Chown stores uid/gid claims. Either id may be left unchanged by passing
// the sentinel value ^uint32(0), matching chown(2)'s -1 convention.
func (fs *FS) Chown(relpath string, uid, gid uint32) (fuseproto.Attr, error) {
	const unset = ^uint32(0)

	info, exists, err := fs.statPath(relpath, false)
	if err != nil {
		return fuseproto.Attr{}, err
	}
	defer fs.close(info)
	if !exists {
		return fuseproto.Attr{}, unix.ENOENT
	}

	if uid != unset {
		info.fake.UID = uid
		info.fake.Flags |= FlagUIDSet
	}
	if gid != unset {
		info.fake.GID = gid
		info.fake.Flags |= FlagGIDSet
	}
	if err := fs.updateFakeData(info); err != nil {
		return fuseproto.Attr{}, err
	}

	outUID, outGID, outMode := fs.applyStat(info)
	return attrFromStat(info.stat, outUID, outGID, outMode), nil
}

// Mkdir creates a directory with fixed real bits and records the caller's
// claimed mode/uid/gid on it.
func (fs *FS) Mkdir(relpath string, mode, callerUID, callerGID uint32) (fuseproto.Attr, error) {
	dirfd, base, err := fs.openParentDir(relpath)
	if err != nil {
		return fuseproto.Attr{}, err
	}
	defer fs.closeParentDir(dirfd)

	realMode := RealMode(true, false)
	if err := unix.Mkdirat(dirfd, base, realMode); err != nil {
		return fuseproto.Attr{}, err
	}

	data := FakeRecord{
		Mode:  mode & 0o7777,
		UID:   callerUID,
		GID:   callerGID,
		Flags: FlagModeSet | FlagUIDSet | FlagGIDSet,
	}
	if err := setFakeData(dirfd, base, false, data); err != nil {
		return fuseproto.Attr{}, err
	}

	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, base, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fuseproto.Attr{}, err
	}
	uid, gid, outMode := Apply(data, st.Uid, st.Gid, st.Mode, fs.maxUID, fs.maxGID)
	return attrFromStat(st, uid, gid, outMode), nil
}

// Unlink removes a file, and if it was a symlink, its sidecar claim record
// too -- safe because symlinks can't be hardlinked, so this is always the
// sidecar's last reference.
func (fs *FS) Unlink(relpath string) error {
	info, exists, err := fs.statPath(relpath, false)
	if err != nil {
		return err
	}
	defer fs.close(info)
	if !exists {
		return unix.ENOENT
	}

	if err := unix.Unlinkat(info.dirfd, info.basename, 0); err != nil {
		return err
	}
	if info.sidecar != "" {
		unix.Unlinkat(fs.basefd, info.sidecar, 0)
	}
	return nil
}

func (fs *FS) Rmdir(relpath string) error {
	return unix.Unlinkat(fs.basefd, relpath, unix.AT_REMOVEDIR)
}

// Mknod is refused outright: grootfs has no way to fake device nodes or
// sockets underneath an unprivileged backing filesystem.
func (fs *FS) Mknod(relpath string, mode uint32, rdev uint64) error {
	return unix.EROFS
}

// Symlink creates a symlink and stamps a sidecar claim recording the
// caller's identity as owner, since the link itself can carry no xattr.
func (fs *FS) Symlink(target, relpath string, callerUID, callerGID uint32) (fuseproto.Attr, error) {
	if err := unix.Symlinkat(target, fs.basefd, relpath); err != nil {
		return fuseproto.Attr{}, err
	}

	info, exists, err := fs.statPath(relpath, false)
	if err != nil || !exists {
		return fuseproto.Attr{}, err
	}
	defer fs.close(info)

	info.fake = FakeRecord{UID: callerUID, GID: callerGID, Flags: FlagUIDSet | FlagGIDSet}
	if err := fs.updateFakeData(info); err != nil {
		return fuseproto.Attr{}, err
	}

	uid, gid, mode := fs.applyStat(info)
	return attrFromStat(info.stat, uid, gid, mode), nil
}

func (fs *FS) Readlink(relpath string) (string, error) {
	buf := make([]byte, unix.PathMax)
	n, err := unix.Readlinkat(fs.basefd, relpath, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func (fs *FS) Rename(from, to string) error {
	return unix.Renameat(fs.basefd, from, fs.basefd, to)
}

func (fs *FS) Link(from, to string) error {
	return unix.Linkat(fs.basefd, from, fs.basefd, to, 0)
}

func (fs *FS) Truncate(relpath string, size int64) error {
	fd, err := unix.Openat(fs.basefd, relpath, unix.O_NOFOLLOW|unix.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Ftruncate(fd, size)
}

func (fs *FS) Ftruncate(fh uint64, size int64) error {
	f, ok := fs.file(fh)
	if !ok {
		return unix.EBADF
	}
	return unix.Ftruncate(int(f.Fd()), size)
}

func (fs *FS) Utimens(relpath string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(fs.basefd, relpath, ts, unix.AT_SYMLINK_NOFOLLOW)
}

// Open resolves an existing file for I/O and returns a file handle.
func (fs *FS) Open(relpath string, flags uint32) (uint64, error) {
	fd, err := unix.Openat(fs.basefd, relpath, int(flags), 0)
	if err != nil {
		return 0, err
	}
	return fs.allocFH(os.NewFile(uintptr(fd), relpath)), nil
}

// Create opens or creates relpath. The kernel's O_EXCL is forced on for the
// first attempt regardless of what the caller asked for, purely so grootfs
// can tell whether it actually created the file (and therefore owns
// stamping a fresh claim) versus opened one that already existed.
func (fs *FS) Create(relpath string, flags, mode, callerUID, callerGID uint32) (uint64, fuseproto.Attr, error) {
	realMode := RealMode(false, mode&unix.S_IXUSR != 0)

	tryFlags := int(flags)
	forcedExcl := tryFlags&unix.O_EXCL == 0
	if forcedExcl {
		tryFlags |= unix.O_EXCL
	}

	fd, err := unix.Openat(fs.basefd, relpath, tryFlags, realMode)
	created := true
	if err == unix.EEXIST && forcedExcl {
		created = false
		fd, err = unix.Openat(fs.basefd, relpath, int(flags), realMode)
	}
	if err != nil {
		return 0, fuseproto.Attr{}, err
	}

	if created {
		data := FakeRecord{
			Mode:  mode & 0o7777,
			UID:   callerUID,
			GID:   callerGID,
			Flags: FlagModeSet | FlagUIDSet | FlagGIDSet,
		}
		if err := setFakeDataFd(fd, data); err != nil {
			unix.Close(fd)
			return 0, fuseproto.Attr{}, err
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return 0, fuseproto.Attr{}, err
	}
	fake, err := getFakeDataFd(fd)
	if err != nil {
		unix.Close(fd)
		return 0, fuseproto.Attr{}, err
	}
	uid, gid, outMode := Apply(fake, st.Uid, st.Gid, st.Mode, fs.maxUID, fs.maxGID)

	fh := fs.allocFH(os.NewFile(uintptr(fd), relpath))
	return fh, attrFromStat(st, uid, gid, outMode), nil
}

func (fs *FS) Read(fh uint64, offset int64, size int) ([]byte, error) {
	f, ok := fs.file(fh)
	if !ok {
		return nil, unix.EBADF
	}
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (fs *FS) Write(fh uint64, offset int64, data []byte) (int, error) {
	f, ok := fs.file(fh)
	if !ok {
		return 0, unix.EBADF
	}
	return f.WriteAt(data, offset)
}

func (fs *FS) Release(fh uint64) {
	fs.releaseFH(fh)
}

func (fs *FS) Fsync(fh uint64) error {
	f, ok := fs.file(fh)
	if !ok {
		return unix.EBADF
	}
	return unix.Fsync(int(f.Fd()))
}

func (fs *FS) Statfs() (fuseproto.Statfs, error) {
	var st unix.Statfs_t
	if err := unix.Fstatfs(fs.basefd, &st); err != nil {
		return fuseproto.Statfs{}, err
	}
	return fuseproto.Statfs{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		NameLen: uint32(st.Namelen),
		Frsize:  uint32(st.Frsize),
	}, nil
}

// Access always reports write access as available, matching the original
// implementation's deliberate lie: GNU coreutils rm probes W_OK before
// unlink, and a real permission check here would defeat the entire point
// of faking permissions.
func (fs *FS) Access(relpath string, mask uint32) error {
	if mask&unix.W_OK != 0 {
		return nil
	}
	return unix.Faccessat(fs.basefd, relpath, mask, unix.AT_SYMLINK_NOFOLLOW)
}

// Readdir lists relpath's entries, hiding grootfs's own sidecar files.
func (fs *FS) Readdir(relpath string) ([]fuseproto.DirEntry, error) {
	dir := relpath
	if dir == "" {
		dir = "." // openat rejects an empty path; "" names the root
	}
	fd, err := unix.Openat(fs.basefd, dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), relpath)
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]fuseproto.DirEntry, 0, len(names))
	for i, name := range names {
		if IsSidecar(name) {
			continue
		}
		var st unix.Stat_t
		mode := uint32(0)
		if unix.Fstatat(fd, name, &st, unix.AT_SYMLINK_NOFOLLOW) == nil {
			mode = st.Mode
		}
		entries = append(entries, fuseproto.DirEntry{
			Name:       name,
			Ino:        st.Ino,
			Mode:       mode,
			NextOffset: uint64(i + 1),
		})
	}
	return entries, nil
}

func (fs *FS) Setxattr(relpath, name string, value []byte, flags uint32) error {
	dirfd, base, err := fs.openParentDir(relpath)
	if err != nil {
		return err
	}
	defer fs.closeParentDir(dirfd)
	return unix.Lsetxattr(procFdPath(dirfd, base), CustomXattrPrefix+name, value, int(flags))
}

func (fs *FS) Getxattr(relpath, name string, size int) ([]byte, error) {
	dirfd, base, err := fs.openParentDir(relpath)
	if err != nil {
		return nil, err
	}
	defer fs.closeParentDir(dirfd)

	buf := make([]byte, size)
	n, err := unix.Lgetxattr(procFdPath(dirfd, base), CustomXattrPrefix+name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (fs *FS) Removexattr(relpath, name string) error {
	dirfd, base, err := fs.openParentDir(relpath)
	if err != nil {
		return err
	}
	defer fs.closeParentDir(dirfd)
	return unix.Lremovexattr(procFdPath(dirfd, base), CustomXattrPrefix+name)
}

// Listxattr returns only the caller-visible xattrs (those under
// CustomXattrPrefix), stripped of that prefix. The backing list is read with
// a size-0 probe followed by a buffer of exactly the probed size, probing
// again if the list grew in between (ERANGE).
func (fs *FS) Listxattr(relpath string) ([]string, error) {
	dirfd, base, err := fs.openParentDir(relpath)
	if err != nil {
		return nil, err
	}
	defer fs.closeParentDir(dirfd)

	proc := procFdPath(dirfd, base)
	var raw []byte
	for {
		size, err := unix.Llistxattr(proc, nil)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size)
		n, err := unix.Llistxattr(proc, buf)
		if err != nil {
			if err == unix.ERANGE {
				continue
			}
			return nil, err
		}
		raw = buf[:n]
		break
	}

	var names []string
	for len(raw) > 0 {
		i := 0
		for i < len(raw) && raw[i] != 0 {
			i++
		}
		name := string(raw[:i])
		if len(raw) > i {
			raw = raw[i+1:]
		} else {
			raw = nil
		}
		if len(name) > len(CustomXattrPrefix) && name[:len(CustomXattrPrefix)] == CustomXattrPrefix {
			names = append(names, name[len(CustomXattrPrefix):])
		}
	}
	return names, nil
}
