package fuseproto

// Opcode is a FUSE low-level request opcode, as defined by the stable Linux
// kernel FUSE wire protocol (linux/fuse.h). groot talks this protocol
// directly instead of depending on a FUSE binding, because none of the
// FUSE libraries surfaced by the retrieval pack expose a way to build a
// session around an already-open, cross-process-handed /dev/fuse
// descriptor (see DESIGN.md).
type Opcode uint32

const (
	OpLookup       Opcode = 1
	OpForget       Opcode = 2
	OpGetattr      Opcode = 3
	OpSetattr      Opcode = 4
	OpReadlink     Opcode = 5
	OpSymlink      Opcode = 6
	OpMknod        Opcode = 8
	OpMkdir        Opcode = 9
	OpUnlink       Opcode = 10
	OpRmdir        Opcode = 11
	OpRename       Opcode = 12
	OpLink         Opcode = 13
	OpOpen         Opcode = 14
	OpRead         Opcode = 15
	OpWrite        Opcode = 16
	OpStatfs       Opcode = 17
	OpRelease      Opcode = 18
	OpFsync        Opcode = 20
	OpSetxattr     Opcode = 21
	OpGetxattr     Opcode = 22
	OpListxattr    Opcode = 23
	OpRemovexattr  Opcode = 24
	OpFlush        Opcode = 25
	OpInit         Opcode = 26
	OpOpendir      Opcode = 27
	OpReaddir      Opcode = 28
	OpReleasedir   Opcode = 29
	OpFsyncdir     Opcode = 30
	OpAccess       Opcode = 34
	OpCreate       Opcode = 35
	OpInterrupt    Opcode = 36
	OpDestroy      Opcode = 38
	OpBatchForget  Opcode = 42
)

// setattr valid-field bits (FATTR_*).
const (
	FattrMode      uint32 = 1 << 0
	FattrUID       uint32 = 1 << 1
	FattrGID       uint32 = 1 << 2
	FattrSize      uint32 = 1 << 3
	FattrAtime     uint32 = 1 << 4
	FattrMtime     uint32 = 1 << 5
	FattrFH        uint32 = 1 << 6
	FattrAtimeNow  uint32 = 1 << 7
	FattrMtimeNow  uint32 = 1 << 8
	FattrLockOwner uint32 = 1 << 9
)

// S_IFMT family bits, used when deriving a directory-entry type byte from
// a mode and when masking the claimed permission bits.
const (
	SIFMT  uint32 = 0170000
	SIFDIR uint32 = 0040000
	SIFLNK uint32 = 0120000
	SIFREG uint32 = 0100000
)

// RootNodeID is the fixed nodeid the kernel uses to refer to the mountpoint.
const RootNodeID uint64 = 1

// ProtoMajor/ProtoMinor are the protocol version groot negotiates in its
// INIT reply. Minor 9 is the oldest version with stable fuse_getattr_in /
// fuse_setattr_in layouts, and corresponds closely to the FUSE_USE_VERSION
// 26 the original C implementation built against; any newer kernel will
// simply restrict itself to this subset.
const (
	ProtoMajor uint32 = 7
	ProtoMinor uint32 = 9
)
