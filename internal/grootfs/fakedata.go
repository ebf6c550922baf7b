// Package grootfs implements the permission-faking overlay: a FUSE
// low-level filesystem that stores claimed uid/gid/mode as a small binary
// xattr record and reports them back to callers while keeping a fixed,
// always-accessible set of real permission bits on the backing file.
package grootfs

import "encoding/binary"

// XattrName is the extended attribute grootfs stores its claimed
// ownership/mode record under.
const XattrName = "user.grootfs"

// CustomXattrPrefix namespaces the xattrs grootfs exposes to callers as
// their own (setxattr/getxattr/listxattr), keeping them out of the way of
// XattrName itself.
const CustomXattrPrefix = "user.grootfs."

// recordSize is the wire size of FakeRecord: four uint32 fields, no padding.
const recordSize = 16

// Flag bits recording which fields of a FakeRecord are actually claims,
// as opposed to zero because nothing was ever set.
const (
	FlagUIDSet  uint32 = 1 << 0
	FlagGIDSet  uint32 = 1 << 1
	FlagModeSet uint32 = 1 << 2
)

// FakeRecord is the claimed identity/mode overlay for one file, exactly as
// stored in the XattrName attribute: big-endian on the wire regardless of
// host byte order, so the record is portable across architectures.
type FakeRecord struct {
	Flags uint32
	UID   uint32
	GID   uint32
	Mode  uint32
}

// Encode serializes r into its 16-byte wire form.
func (r FakeRecord) Encode() []byte {
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint32(buf[0:4], r.Flags)
	binary.BigEndian.PutUint32(buf[4:8], r.UID)
	binary.BigEndian.PutUint32(buf[8:12], r.GID)
	binary.BigEndian.PutUint32(buf[12:16], r.Mode)
	return buf
}

// DecodeFakeRecord parses a wire-form record. Any length other than exactly
// recordSize is treated as corrupt data rather than partially trusted.
func DecodeFakeRecord(b []byte) (FakeRecord, error) {
	if len(b) != recordSize {
		return FakeRecord{}, &ErrBadRecordSize{Got: len(b)}
	}
	return FakeRecord{
		Flags: binary.BigEndian.Uint32(b[0:4]),
		UID:   binary.BigEndian.Uint32(b[4:8]),
		GID:   binary.BigEndian.Uint32(b[8:12]),
		Mode:  binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// ErrBadRecordSize is returned when a stored XattrName value isn't exactly
// recordSize bytes -- data grootfs itself never wrote, or written by an
// incompatible version.
type ErrBadRecordSize struct {
	Got int
}

func (e *ErrBadRecordSize) Error() string {
	return "grootfs: fake data record has wrong size"
}

// permMask covers every bit chmod(2) is allowed to touch: rwx for
// user/group/other plus setuid/setgid/sticky.
const permMask = 0o7777

// Apply overlays r onto the real stat-derived uid/gid/mode, then caps any
// resulting id above maxUID/maxGID down to 0 so callers inside the
// namespace never observe an id it has no mapping for.
func Apply(r FakeRecord, realUID, realGID, realMode, maxUID, maxGID uint32) (uid, gid, mode uint32) {
	uid, gid, mode = realUID, realGID, realMode

	if r.Flags&FlagUIDSet != 0 {
		uid = r.UID
	}
	if r.Flags&FlagGIDSet != 0 {
		gid = r.GID
	}
	if r.Flags&FlagModeSet != 0 {
		mode = (mode &^ permMask) | (r.Mode & permMask)
	}

	if uid > maxUID {
		uid = 0
	}
	if gid > maxGID {
		gid = 0
	}
	return uid, gid, mode
}
