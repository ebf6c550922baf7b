package fuseproto

// InitIn mirrors the fixed portion of struct fuse_init_in that groot cares
// about; newer kernels append flags2/extension fields groot never reads.
type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
}

func DecodeInitIn(b []byte) (InitIn, error) {
	const size = 16
	if len(b) < size {
		return InitIn{}, errShortBuffer("fuse_init_in", size, len(b))
	}
	return InitIn{
		Major:        byteOrder.Uint32(b[0:4]),
		Minor:        byteOrder.Uint32(b[4:8]),
		MaxReadahead: byteOrder.Uint32(b[8:12]),
		Flags:        byteOrder.Uint32(b[12:16]),
	}, nil
}

// MaxWrite bounds the size of a single WRITE request's payload groot will
// accept in one go; kept modest since grootfs proxies every write straight
// through to a regular file with no internal buffering.
const MaxWrite uint32 = 128 * 1024

// EncodeInitOut builds the fuse_init_out reply body. groot negotiates none
// of the newer capability flags (writeback cache, async dio, ...): every
// grootfs operation is a thin synchronous wrapper around the real
// filesystem, so there is nothing for those optimizations to buy.
func EncodeInitOut(minorNegotiated uint32) []byte {
	buf := make([]byte, 24)
	byteOrder.PutUint32(buf[0:4], ProtoMajor)
	byteOrder.PutUint32(buf[4:8], minorNegotiated)
	byteOrder.PutUint32(buf[8:12], 0)   // max_readahead, unused
	byteOrder.PutUint32(buf[12:16], 0)  // flags
	byteOrder.PutUint16(buf[16:18], 0)  // max_background
	byteOrder.PutUint16(buf[18:20], 0)  // congestion_threshold
	byteOrder.PutUint32(buf[20:24], MaxWrite)
	return buf
}

// NegotiateMinor picks the minor version groot will actually speak: the
// lower of what it supports and what the kernel offered.
func NegotiateMinor(kernelMinor uint32) uint32 {
	if kernelMinor < ProtoMinor {
		return kernelMinor
	}
	return ProtoMinor
}
