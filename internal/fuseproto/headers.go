package fuseproto

import "encoding/binary"

// byteOrder is the in-memory byte order the kernel uses for the FUSE wire
// structs on every architecture groot targets (all little-endian).
var byteOrder = binary.LittleEndian

const inHeaderSize = 40

// InHeader is the fixed header prefixing every kernel request.
type InHeader struct {
	Len    uint32
	Opcode Opcode
	Unique uint64
	NodeID uint64
	UID    uint32
	GID    uint32
	PID    uint32
}

func decodeInHeader(b []byte) (InHeader, error) {
	if len(b) < inHeaderSize {
		return InHeader{}, errShortBuffer("fuse_in_header", inHeaderSize, len(b))
	}
	return InHeader{
		Len:    byteOrder.Uint32(b[0:4]),
		Opcode: Opcode(byteOrder.Uint32(b[4:8])),
		Unique: byteOrder.Uint64(b[8:16]),
		NodeID: byteOrder.Uint64(b[16:24]),
		UID:    byteOrder.Uint32(b[24:28]),
		GID:    byteOrder.Uint32(b[28:32]),
		PID:    byteOrder.Uint32(b[32:36]),
		// bytes [36:40] are padding
	}, nil
}

const outHeaderSize = 16

func encodeOutHeader(dst []byte, length uint32, errno int32, unique uint64) {
	byteOrder.PutUint32(dst[0:4], length)
	byteOrder.PutUint32(dst[4:8], uint32(errno))
	byteOrder.PutUint64(dst[8:16], unique)
}
