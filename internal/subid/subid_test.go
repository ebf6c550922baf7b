package subid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestBuildUIDTableSingleRange(t *testing.T) {
	path := writeFixture(t, "alice:100000:65536\nbob:165536:65536\n")

	table := BuildUIDTable(path, "alice", 1000)

	require.Len(t, table, 2)
	assert.Equal(t, Range{NSIDStart: 0, HostIDStart: 1000, Length: 1}, table[0])
	assert.Equal(t, Range{NSIDStart: 1, HostIDStart: 100000, Length: 65536}, table[1])
}

func TestBuildUIDTableMultipleRangesAreDensePacked(t *testing.T) {
	path := writeFixture(t, "alice:100000:10\nalice:200000:20\n")

	table := BuildUIDTable(path, "alice", 1000)

	require.Len(t, table, 3)
	assert.Equal(t, uint32(1), table[1].NSIDStart)
	assert.Equal(t, uint32(11), table[2].NSIDStart)
	assert.Equal(t, uint32(20), table[2].Length)
}

func TestBuildUIDTableIgnoresOtherUsers(t *testing.T) {
	path := writeFixture(t, "bob:100000:65536\n")

	table := BuildUIDTable(path, "alice", 1000)

	require.Len(t, table, 1)
	assert.Equal(t, Range{NSIDStart: 0, HostIDStart: 1000, Length: 1}, table[0])
}

func TestBuildUIDTableSkipsMalformedLines(t *testing.T) {
	path := writeFixture(t, "alice:notanumber:65536\nalice:100000:65536\n")

	table := BuildUIDTable(path, "alice", 1000)

	require.Len(t, table, 2)
	assert.Equal(t, uint32(100000), table[1].HostIDStart)
}

func TestBuildUIDTableMissingFileFallsBackToIdentity(t *testing.T) {
	table := BuildUIDTable(filepath.Join(t.TempDir(), "does-not-exist"), "alice", 1000)

	require.Len(t, table, 1)
	assert.Equal(t, Range{NSIDStart: 0, HostIDStart: 1000, Length: 1}, table[0])
}

func TestMaxIDReturnsHighestNSID(t *testing.T) {
	table := Table{
		{NSIDStart: 0, HostIDStart: 1000, Length: 1},
		{NSIDStart: 1, HostIDStart: 100000, Length: 65536},
	}
	assert.Equal(t, uint32(65536), table.MaxID())
}

func TestEncodeDecodeTableRoundTrip(t *testing.T) {
	table := Table{
		{NSIDStart: 0, HostIDStart: 1000, Length: 1},
		{NSIDStart: 1, HostIDStart: 100000, Length: 65536},
	}
	got, err := DecodeTable(table.Encode())
	require.NoError(t, err)
	assert.Equal(t, table, got)
}

func TestDecodeTableEmptyString(t *testing.T) {
	got, err := DecodeTable("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeTableRejectsMalformed(t *testing.T) {
	_, err := DecodeTable("not-a-table")
	require.Error(t, err)
}

func TestArgsFlattensTriples(t *testing.T) {
	table := Table{
		{NSIDStart: 0, HostIDStart: 1000, Length: 1},
		{NSIDStart: 1, HostIDStart: 100000, Length: 65536},
	}

	assert.Equal(t, []string{"0", "1000", "1", "1", "100000", "65536"}, table.Args())
}
