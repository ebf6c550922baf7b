package fuseproto

import "time"

// Attr mirrors struct fuse_attr: the metadata groot reports back to the
// kernel for a node. Size is fixed at 88 bytes on the wire.
type Attr struct {
	Ino     uint64
	Size    uint64
	Blocks  uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint32
	Blksize uint32
}

const attrSize = 88

func (a Attr) encode(dst []byte) {
	byteOrder.PutUint64(dst[0:8], a.Ino)
	byteOrder.PutUint64(dst[8:16], a.Size)
	byteOrder.PutUint64(dst[16:24], a.Blocks)
	byteOrder.PutUint64(dst[24:32], uint64(a.Atime.Unix()))
	byteOrder.PutUint64(dst[32:40], uint64(a.Mtime.Unix()))
	byteOrder.PutUint64(dst[40:48], uint64(a.Ctime.Unix()))
	byteOrder.PutUint32(dst[48:52], uint32(a.Atime.Nanosecond()))
	byteOrder.PutUint32(dst[52:56], uint32(a.Mtime.Nanosecond()))
	byteOrder.PutUint32(dst[56:60], uint32(a.Ctime.Nanosecond()))
	byteOrder.PutUint32(dst[60:64], a.Mode)
	byteOrder.PutUint32(dst[64:68], a.Nlink)
	byteOrder.PutUint32(dst[68:72], a.UID)
	byteOrder.PutUint32(dst[72:76], a.GID)
	byteOrder.PutUint32(dst[76:80], a.Rdev)
	byteOrder.PutUint32(dst[80:84], a.Blksize)
	// bytes [84:88] padding
}

// EncodeAttrOut builds a fuse_attr_out reply body (attr_valid timeout fields
// plus the embedded fuse_attr). groot reports a zero cache-validity timeout:
// every lookup re-derives state from the backing filesystem and its xattr,
// so the kernel should never serve a stale attribute from cache.
func EncodeAttrOut(a Attr) []byte {
	buf := make([]byte, 16+attrSize)
	// attr_valid = 0, attr_valid_nsec = 0, dummy = 0
	a.encode(buf[16:])
	return buf
}

// EncodeEntryOut builds a fuse_entry_out reply body for LOOKUP/MKDIR/CREATE/
// SYMLINK/LINK/MKNOD, again with zero entry/attr cache-validity timeouts.
func EncodeEntryOut(nodeID uint64, a Attr) []byte {
	buf := make([]byte, 40+attrSize)
	byteOrder.PutUint64(buf[0:8], nodeID)
	byteOrder.PutUint64(buf[8:16], 1) // generation
	// entry_valid, attr_valid, entry_valid_nsec, attr_valid_nsec all zero
	a.encode(buf[40:])
	return buf
}

// EncodeOpenOut builds a fuse_open_out reply body for OPEN/OPENDIR/CREATE.
func EncodeOpenOut(fh uint64, openFlags uint32) []byte {
	buf := make([]byte, 16)
	byteOrder.PutUint64(buf[0:8], fh)
	byteOrder.PutUint32(buf[8:12], openFlags)
	return buf
}

// EncodeWriteOut builds a fuse_write_out reply body.
func EncodeWriteOut(size uint32) []byte {
	buf := make([]byte, 8)
	byteOrder.PutUint32(buf[0:4], size)
	return buf
}

// DecodeGetattrIn parses fuse_getattr_in (getattr_flags, dummy, fh).
func DecodeGetattrIn(b []byte) (flags uint32, fh uint64, err error) {
	if len(b) < 16 {
		return 0, 0, errShortBuffer("fuse_getattr_in", 16, len(b))
	}
	return byteOrder.Uint32(b[0:4]), byteOrder.Uint64(b[8:16]), nil
}

// SetattrIn mirrors struct fuse_setattr_in.
type SetattrIn struct {
	Valid uint32
	FH    uint64
	Size  uint64
	Atime time.Time
	Mtime time.Time
	Mode  uint32
	UID   uint32
	GID   uint32
}

func DecodeSetattrIn(b []byte) (SetattrIn, error) {
	const size = 88
	if len(b) < size {
		return SetattrIn{}, errShortBuffer("fuse_setattr_in", size, len(b))
	}
	valid := byteOrder.Uint32(b[0:4])
	fh := byteOrder.Uint64(b[8:16])
	fsize := byteOrder.Uint64(b[16:24])
	// lock_owner at [24:32] ignored
	atimeSec := byteOrder.Uint64(b[32:40])
	mtimeSec := byteOrder.Uint64(b[40:48])
	// ctime at [48:56] ignored (kernel/controlled, not settable)
	atimeNsec := byteOrder.Uint32(b[56:60])
	mtimeNsec := byteOrder.Uint32(b[60:64])
	mode := byteOrder.Uint32(b[68:72])
	uid := byteOrder.Uint32(b[76:80])
	gid := byteOrder.Uint32(b[80:84])
	return SetattrIn{
		Valid: valid,
		FH:    fh,
		Size:  fsize,
		Atime: time.Unix(int64(atimeSec), int64(atimeNsec)),
		Mtime: time.Unix(int64(mtimeSec), int64(mtimeNsec)),
		Mode:  mode,
		UID:   uid,
		GID:   gid,
	}, nil
}

// DecodeOpenIn parses fuse_open_in (flags, unused).
func DecodeOpenIn(b []byte) (flags uint32, err error) {
	if len(b) < 8 {
		return 0, errShortBuffer("fuse_open_in", 8, len(b))
	}
	return byteOrder.Uint32(b[0:4]), nil
}

// CreateIn mirrors struct fuse_create_in plus the trailing NUL-terminated name.
type CreateIn struct {
	Flags uint32
	Mode  uint32
	Umask uint32
	Name  string
}

func DecodeCreateIn(b []byte) (CreateIn, error) {
	const hdr = 16
	if len(b) < hdr {
		return CreateIn{}, errShortBuffer("fuse_create_in", hdr, len(b))
	}
	return CreateIn{
		Flags: byteOrder.Uint32(b[0:4]),
		Mode:  byteOrder.Uint32(b[4:8]),
		Umask: byteOrder.Uint32(b[8:12]),
		Name:  CString(b[hdr:]),
	}, nil
}

// MkdirIn mirrors struct fuse_mkdir_in plus the trailing name.
type MkdirIn struct {
	Mode  uint32
	Umask uint32
	Name  string
}

func DecodeMkdirIn(b []byte) (MkdirIn, error) {
	const hdr = 8
	if len(b) < hdr {
		return MkdirIn{}, errShortBuffer("fuse_mkdir_in", hdr, len(b))
	}
	return MkdirIn{
		Mode:  byteOrder.Uint32(b[0:4]),
		Umask: byteOrder.Uint32(b[4:8]),
		Name:  CString(b[hdr:]),
	}, nil
}

// ReadIn mirrors struct fuse_read_in.
type ReadIn struct {
	FH     uint64
	Offset uint64
	Size   uint32
}

func DecodeReadIn(b []byte) (ReadIn, error) {
	const size = 40
	if len(b) < size {
		return ReadIn{}, errShortBuffer("fuse_read_in", size, len(b))
	}
	return ReadIn{
		FH:     byteOrder.Uint64(b[0:8]),
		Offset: byteOrder.Uint64(b[8:16]),
		Size:   byteOrder.Uint32(b[16:20]),
	}, nil
}

// WriteIn mirrors struct fuse_write_in; Data is the payload following the
// fixed header.
type WriteIn struct {
	FH     uint64
	Offset uint64
	Size   uint32
	Data   []byte
}

func DecodeWriteIn(b []byte) (WriteIn, error) {
	const hdr = 40
	if len(b) < hdr {
		return WriteIn{}, errShortBuffer("fuse_write_in", hdr, len(b))
	}
	size := byteOrder.Uint32(b[16:20])
	data := b[hdr:]
	if uint32(len(data)) > size {
		data = data[:size]
	}
	return WriteIn{
		FH:     byteOrder.Uint64(b[0:8]),
		Offset: byteOrder.Uint64(b[8:16]),
		Size:   size,
		Data:   data,
	}, nil
}

// ReleaseIn mirrors struct fuse_release_in.
type ReleaseIn struct {
	FH    uint64
	Flags uint32
}

func DecodeReleaseIn(b []byte) (ReleaseIn, error) {
	const size = 24
	if len(b) < size {
		return ReleaseIn{}, errShortBuffer("fuse_release_in", size, len(b))
	}
	return ReleaseIn{
		FH:    byteOrder.Uint64(b[0:8]),
		Flags: byteOrder.Uint32(b[8:12]),
	}, nil
}

// DecodeFsyncIn parses struct fuse_fsync_in, returning its fh.
func DecodeFsyncIn(b []byte) (fh uint64, err error) {
	if len(b) < 16 {
		return 0, errShortBuffer("fuse_fsync_in", 16, len(b))
	}
	return byteOrder.Uint64(b[0:8]), nil
}

// DecodeAccessIn parses struct fuse_access_in, returning its mask.
func DecodeAccessIn(b []byte) (mask uint32, err error) {
	if len(b) < 8 {
		return 0, errShortBuffer("fuse_access_in", 8, len(b))
	}
	return byteOrder.Uint32(b[0:4]), nil
}

// RenameIn mirrors struct fuse_rename_in plus the two trailing NUL-terminated names.
type RenameIn struct {
	NewDir  uint64
	OldName string
	NewName string
}

func DecodeRenameIn(b []byte) (RenameIn, error) {
	const hdr = 8
	if len(b) < hdr {
		return RenameIn{}, errShortBuffer("fuse_rename_in", hdr, len(b))
	}
	rest := b[hdr:]
	oldName := CString(rest)
	if len(oldName)+1 > len(rest) {
		return RenameIn{}, errShortBuffer("fuse_rename_in names", len(oldName)+1, len(rest))
	}
	newName := CString(rest[len(oldName)+1:])
	return RenameIn{
		NewDir:  byteOrder.Uint64(b[0:8]),
		OldName: oldName,
		NewName: newName,
	}, nil
}

// LinkIn mirrors struct fuse_link_in plus the trailing new-name.
type LinkIn struct {
	OldNodeID uint64
	NewName   string
}

func DecodeLinkIn(b []byte) (LinkIn, error) {
	const hdr = 8
	if len(b) < hdr {
		return LinkIn{}, errShortBuffer("fuse_link_in", hdr, len(b))
	}
	return LinkIn{
		OldNodeID: byteOrder.Uint64(b[0:8]),
		NewName:   CString(b[hdr:]),
	}, nil
}

// GetxattrIn mirrors struct fuse_getxattr_in plus the trailing attribute name.
type GetxattrIn struct {
	Size uint32
	Name string
}

func DecodeGetxattrIn(b []byte) (GetxattrIn, error) {
	const hdr = 8
	if len(b) < hdr {
		return GetxattrIn{}, errShortBuffer("fuse_getxattr_in", hdr, len(b))
	}
	return GetxattrIn{
		Size: byteOrder.Uint32(b[0:4]),
		Name: CString(b[hdr:]),
	}, nil
}

// EncodeGetxattrOut builds a fuse_getxattr_out reply body (size-probe form).
func EncodeGetxattrOut(size uint32) []byte {
	buf := make([]byte, 8)
	byteOrder.PutUint32(buf[0:4], size)
	return buf
}

// SetxattrIn mirrors struct fuse_setxattr_in plus the trailing
// NUL-terminated name and the raw value bytes.
type SetxattrIn struct {
	Size  uint32
	Flags uint32
	Name  string
	Value []byte
}

func DecodeSetxattrIn(b []byte) (SetxattrIn, error) {
	const hdr = 8
	if len(b) < hdr {
		return SetxattrIn{}, errShortBuffer("fuse_setxattr_in", hdr, len(b))
	}
	size := byteOrder.Uint32(b[0:4])
	flags := byteOrder.Uint32(b[4:8])
	rest := b[hdr:]
	name := CString(rest)
	valueStart := len(name) + 1
	if valueStart+int(size) > len(rest) {
		return SetxattrIn{}, errShortBuffer("fuse_setxattr_in value", valueStart+int(size), len(rest))
	}
	value := rest[valueStart : valueStart+int(size)]
	return SetxattrIn{Size: size, Flags: flags, Name: name, Value: value}, nil
}

// EncodeStatfsOut builds a fuse_statfs_out reply body from a statvfs-shaped result.
type Statfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	NameLen uint32
	Frsize  uint32
}

func EncodeStatfsOut(s Statfs) []byte {
	buf := make([]byte, 80)
	byteOrder.PutUint64(buf[0:8], s.Blocks)
	byteOrder.PutUint64(buf[8:16], s.Bfree)
	byteOrder.PutUint64(buf[16:24], s.Bavail)
	byteOrder.PutUint64(buf[24:32], s.Files)
	byteOrder.PutUint64(buf[32:40], s.Ffree)
	byteOrder.PutUint32(buf[40:44], s.Bsize)
	byteOrder.PutUint32(buf[44:48], s.NameLen)
	byteOrder.PutUint32(buf[48:52], s.Frsize)
	return buf
}

// CString returns the content of b up to (not including) the first NUL byte.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
