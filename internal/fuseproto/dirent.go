package fuseproto

// DirEntry is one entry groot wants to hand back from a READDIR request.
// Ino/Mode drive the type byte the kernel exposes via d_type; NextOffset is
// the opaque cookie the kernel will echo back on the next READDIR call that
// continues this listing.
type DirEntry struct {
	Name       string
	Ino        uint64
	Mode       uint32
	NextOffset uint64
}

// direntHeaderSize matches struct fuse_dirent's fixed portion: ino, off,
// namelen, type.
const direntHeaderSize = 24

// dirTypeFromMode reduces a mode's file-type bits to the single nibble the
// kernel's d_type wants (DT_DIR, DT_LNK, DT_REG, ...).
func dirTypeFromMode(mode uint32) uint32 {
	switch mode & SIFMT {
	case SIFDIR:
		return 4
	case SIFLNK:
		return 10
	case SIFREG:
		return 8
	default:
		return 0
	}
}

// padLen rounds n up to the next multiple of 8, the alignment struct
// fuse_dirent entries must respect so the kernel can walk the buffer.
func padLen(n int) int {
	return (n + 7) &^ 7
}

// DirEntryList accumulates fuse_dirent records into a buffer bounded by the
// size the kernel requested, mirroring the append-until-full algorithm of
// go-fuse's DirEntryList.Add (see DESIGN.md).
type DirEntryList struct {
	buf []byte
	max int
}

func NewDirEntryList(max int) *DirEntryList {
	return &DirEntryList{buf: make([]byte, 0, max), max: max}
}

// Add appends one entry, returning false without modifying the buffer if it
// would not fit -- the caller should stop iterating and remember to resume
// from this entry's offset on the next READDIR call.
func (l *DirEntryList) Add(e DirEntry) bool {
	nameLen := len(e.Name)
	entryLen := direntHeaderSize + padLen(nameLen)
	if len(l.buf)+entryLen > l.max {
		return false
	}
	rec := make([]byte, entryLen)
	byteOrder.PutUint64(rec[0:8], e.Ino)
	byteOrder.PutUint64(rec[8:16], e.NextOffset)
	byteOrder.PutUint32(rec[16:20], uint32(nameLen))
	byteOrder.PutUint32(rec[20:24], dirTypeFromMode(e.Mode))
	copy(rec[direntHeaderSize:], e.Name)
	l.buf = append(l.buf, rec...)
	return true
}

func (l *DirEntryList) Bytes() []byte {
	return l.buf
}
