package grootfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRecordEncodeDecodeRoundTrip(t *testing.T) {
	r := FakeRecord{Flags: FlagUIDSet | FlagModeSet, UID: 1000, GID: 0, Mode: 0755}
	got, err := DecodeFakeRecord(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecodeFakeRecordRejectsWrongSize(t *testing.T) {
	_, err := DecodeFakeRecord([]byte{1, 2, 3})
	require.Error(t, err)
	var sizeErr *ErrBadRecordSize
	assert.ErrorAs(t, err, &sizeErr)
}

func TestEncodeIsBigEndian(t *testing.T) {
	r := FakeRecord{Flags: 0x01020304}
	buf := r.Encode()
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf[0:4])
}

func TestApplyOnlyOverridesClaimedFields(t *testing.T) {
	r := FakeRecord{Flags: FlagUIDSet, UID: 42}
	uid, gid, mode := Apply(r, 1000, 1000, 0644, 65536, 65536)
	assert.Equal(t, uint32(42), uid)
	assert.Equal(t, uint32(1000), gid)
	assert.Equal(t, uint32(0644), mode)
}

func TestApplyModeOnlyTouchesPermissionBits(t *testing.T) {
	r := FakeRecord{Flags: FlagModeSet, Mode: 0777}
	_, _, mode := Apply(r, 0, 0, 0o40644, 65536, 65536) // directory bit set in real mode
	assert.Equal(t, uint32(0o40777), mode)
}

func TestApplyCapsIDsAboveMax(t *testing.T) {
	r := FakeRecord{Flags: FlagUIDSet | FlagGIDSet, UID: 70000, GID: 70000}
	uid, gid, _ := Apply(r, 0, 0, 0644, 65536, 65536)
	assert.Equal(t, uint32(0), uid)
	assert.Equal(t, uint32(0), gid)
}

func TestApplyNoClaimPassesRealThrough(t *testing.T) {
	uid, gid, mode := Apply(FakeRecord{}, 1000, 1000, 0644, 65536, 65536)
	assert.Equal(t, uint32(1000), uid)
	assert.Equal(t, uint32(1000), gid)
	assert.Equal(t, uint32(0644), mode)
}
