package grootfs

import (
	"testing"

	"github.com/groot-project/groot/internal/fuseproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTableLookupAllocatesThenReuses(t *testing.T) {
	tbl := NewNodeTable()
	id1 := tbl.Lookup(fuseproto.RootNodeID, "a")
	id2 := tbl.Lookup(fuseproto.RootNodeID, "a")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, fuseproto.RootNodeID, id1)
}

func TestNodeTablePathResolvesNestedChain(t *testing.T) {
	tbl := NewNodeTable()
	dir := tbl.Lookup(fuseproto.RootNodeID, "sub")
	file := tbl.Lookup(dir, "file.txt")

	path, ok := tbl.Path(file)
	require.True(t, ok)
	assert.Equal(t, "sub/file.txt", path)
}

func TestNodeTableRootPathIsEmpty(t *testing.T) {
	tbl := NewNodeTable()
	path, ok := tbl.Path(fuseproto.RootNodeID)
	require.True(t, ok)
	assert.Equal(t, "", path)
}

func TestNodeTableForgetEvicts(t *testing.T) {
	tbl := NewNodeTable()
	id := tbl.Lookup(fuseproto.RootNodeID, "a")
	tbl.Forget(id, 1)
	_, ok := tbl.Path(id)
	assert.False(t, ok)
}

func TestNodeTableForgetPartialKeepsAlive(t *testing.T) {
	tbl := NewNodeTable()
	id := tbl.Lookup(fuseproto.RootNodeID, "a")
	tbl.Lookup(fuseproto.RootNodeID, "a") // nlookup now 2
	tbl.Forget(id, 1)
	_, ok := tbl.Path(id)
	assert.True(t, ok)
}

func TestNodeTableRenameDoesNotBreakDescendants(t *testing.T) {
	tbl := NewNodeTable()
	dir := tbl.Lookup(fuseproto.RootNodeID, "old")
	file := tbl.Lookup(dir, "file.txt")

	otherDir := tbl.Lookup(fuseproto.RootNodeID, "new-parent")
	tbl.Rename(dir, otherDir, "renamed")

	path, ok := tbl.Path(file)
	require.True(t, ok)
	assert.Equal(t, "new-parent/renamed/file.txt", path)
}

func TestNodeTableChildLooksUpWithoutAllocating(t *testing.T) {
	tbl := NewNodeTable()
	_, ok := tbl.Child(fuseproto.RootNodeID, "missing")
	assert.False(t, ok)

	id := tbl.Lookup(fuseproto.RootNodeID, "present")
	found, ok := tbl.Child(fuseproto.RootNodeID, "present")
	require.True(t, ok)
	assert.Equal(t, id, found)
}
