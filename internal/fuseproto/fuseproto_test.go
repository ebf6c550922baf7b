package fuseproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, inHeaderSize)
	byteOrder.PutUint32(buf[0:4], inHeaderSize)
	byteOrder.PutUint32(buf[4:8], uint32(OpGetattr))
	byteOrder.PutUint64(buf[8:16], 42)
	byteOrder.PutUint64(buf[16:24], RootNodeID)
	byteOrder.PutUint32(buf[24:28], 1000)
	byteOrder.PutUint32(buf[28:32], 1000)
	byteOrder.PutUint32(buf[32:36], 4242)

	hdr, err := decodeInHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, OpGetattr, hdr.Opcode)
	assert.Equal(t, uint64(42), hdr.Unique)
	assert.Equal(t, RootNodeID, hdr.NodeID)
	assert.Equal(t, uint32(1000), hdr.UID)
	assert.Equal(t, uint32(1000), hdr.GID)
	assert.Equal(t, uint32(4242), hdr.PID)
}

func TestDecodeInHeaderShortBuffer(t *testing.T) {
	_, err := decodeInHeader(make([]byte, 10))
	require.Error(t, err)
	var shortErr *ErrShortBuffer
	assert.ErrorAs(t, err, &shortErr)
}

func TestEncodeOutHeader(t *testing.T) {
	buf := make([]byte, outHeaderSize)
	encodeOutHeader(buf, outHeaderSize, -2, 99)
	assert.Equal(t, uint32(outHeaderSize), byteOrder.Uint32(buf[0:4]))
	assert.Equal(t, int32(-2), int32(byteOrder.Uint32(buf[4:8])))
	assert.Equal(t, uint64(99), byteOrder.Uint64(buf[8:16]))
}

func TestAttrEncodeSize(t *testing.T) {
	a := Attr{
		Ino:   7,
		Size:  1024,
		Mode:  SIFREG | 0644,
		Nlink: 1,
		UID:   1000,
		GID:   1000,
		Atime: time.Unix(1000, 0),
		Mtime: time.Unix(2000, 0),
		Ctime: time.Unix(3000, 0),
	}
	out := EncodeAttrOut(a)
	require.Len(t, out, 16+attrSize)
	assert.Equal(t, uint64(7), byteOrder.Uint64(out[16:24]))
	assert.Equal(t, uint64(1024), byteOrder.Uint64(out[24:32]))
	assert.Equal(t, SIFREG|uint32(0644), byteOrder.Uint32(out[16+60:16+64]))
}

func TestEncodeEntryOut(t *testing.T) {
	a := Attr{Ino: 5, Mode: SIFDIR | 0755}
	out := EncodeEntryOut(5, a)
	require.Len(t, out, 40+attrSize)
	assert.Equal(t, uint64(5), byteOrder.Uint64(out[0:8]))
	assert.Equal(t, uint64(1), byteOrder.Uint64(out[8:16]))
}

func TestDecodeSetattrIn(t *testing.T) {
	buf := make([]byte, 88)
	byteOrder.PutUint32(buf[0:4], FattrMode|FattrUID|FattrGID)
	byteOrder.PutUint32(buf[68:72], 0755)
	byteOrder.PutUint32(buf[76:80], 1000)
	byteOrder.PutUint32(buf[80:84], 1000)

	in, err := DecodeSetattrIn(buf)
	require.NoError(t, err)
	assert.Equal(t, FattrMode|FattrUID|FattrGID, in.Valid)
	assert.Equal(t, uint32(0755), in.Mode)
	assert.Equal(t, uint32(1000), in.UID)
	assert.Equal(t, uint32(1000), in.GID)
}

func TestDecodeCreateInParsesTrailingName(t *testing.T) {
	buf := make([]byte, 16)
	byteOrder.PutUint32(buf[0:4], 0)
	byteOrder.PutUint32(buf[4:8], 0644)
	buf = append(buf, []byte("hello.txt\x00")...)

	in, err := DecodeCreateIn(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", in.Name)
	assert.Equal(t, uint32(0644), in.Mode)
}

func TestDecodeRenameInParsesBothNames(t *testing.T) {
	buf := make([]byte, 8)
	byteOrder.PutUint64(buf[0:8], 99)
	buf = append(buf, []byte("old\x00new\x00")...)

	in, err := DecodeRenameIn(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), in.NewDir)
	assert.Equal(t, "old", in.OldName)
	assert.Equal(t, "new", in.NewName)
}

func TestDecodeSetxattrInParsesNameAndValue(t *testing.T) {
	value := []byte{1, 2, 3, 4}
	buf := make([]byte, 8)
	byteOrder.PutUint32(buf[0:4], uint32(len(value)))
	byteOrder.PutUint32(buf[4:8], 0)
	buf = append(buf, []byte("user.grootfs.custom\x00")...)
	buf = append(buf, value...)

	in, err := DecodeSetxattrIn(buf)
	require.NoError(t, err)
	assert.Equal(t, "user.grootfs.custom", in.Name)
	assert.Equal(t, value, in.Value)
}

func TestDecodeWriteInTruncatesToDeclaredSize(t *testing.T) {
	buf := make([]byte, 40)
	byteOrder.PutUint64(buf[0:8], 3)
	byteOrder.PutUint64(buf[8:16], 0)
	byteOrder.PutUint32(buf[16:20], 4)
	buf = append(buf, []byte("abcdef")...)

	in, err := DecodeWriteIn(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), in.Data)
}

func TestDirEntryListStopsWhenFull(t *testing.T) {
	list := NewDirEntryList(direntHeaderSize + 8)
	ok := list.Add(DirEntry{Name: "a", Ino: 1, Mode: SIFREG, NextOffset: 1})
	require.True(t, ok)
	ok = list.Add(DirEntry{Name: "toolongtofit", Ino: 2, Mode: SIFREG, NextOffset: 2})
	assert.False(t, ok)
}

func TestDirEntryListEncodesType(t *testing.T) {
	list := NewDirEntryList(4096)
	require.True(t, list.Add(DirEntry{Name: "sub", Ino: 2, Mode: SIFDIR, NextOffset: 1}))
	buf := list.Bytes()
	require.GreaterOrEqual(t, len(buf), direntHeaderSize+3)
	assert.Equal(t, uint32(4), byteOrder.Uint32(buf[20:24]))
	assert.Equal(t, "sub", string(buf[direntHeaderSize:direntHeaderSize+3]))
}

func TestNegotiateMinorPicksLower(t *testing.T) {
	assert.Equal(t, uint32(9), NegotiateMinor(31))
	assert.Equal(t, uint32(5), NegotiateMinor(5))
}
