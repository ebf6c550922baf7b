package grootfs

import (
	"fmt"
	"sync"

	"github.com/groot-project/groot/internal/fuseproto"
)

// node is one entry the kernel knows by nodeid. Low-level FUSE addresses
// everything by (parent nodeid, name) pairs rather than full paths, so
// grootfs has to keep this bookkeeping itself -- a high-level libfuse
// binding would do it for free, but taking over an already-mounted
// /dev/fuse handle rules that out here.
type node struct {
	parent  uint64
	name    string
	nlookup uint64
}

// NodeTable maps kernel nodeids to (parent, name) pairs and resolves a
// node's path lazily by walking its parent chain. Keying new allocations
// off (parent, name) rather than off path means a rename only has to touch
// the single renamed node's own entry: every descendant's path resolves
// correctly on the next lookup without any cascading rewrite.
type NodeTable struct {
	mu    sync.Mutex
	nodes map[uint64]*node
	byKey map[string]uint64
	next  uint64
}

func NewNodeTable() *NodeTable {
	t := &NodeTable{
		nodes: map[uint64]*node{
			fuseproto.RootNodeID: {parent: 0, name: ""},
		},
		byKey: make(map[string]uint64),
		next:  fuseproto.RootNodeID + 1,
	}
	return t
}

func key(parent uint64, name string) string {
	return fmt.Sprintf("%d/%s", parent, name)
}

// Lookup returns the nodeid for (parent, name), allocating a fresh one and
// bumping its lookup refcount if this is the first time the kernel has
// asked about it, or incrementing the refcount of an existing one.
func (t *NodeTable) Lookup(parent uint64, name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(parent, name)
	if id, ok := t.byKey[k]; ok {
		t.nodes[id].nlookup++
		return id
	}

	id := t.next
	t.next++
	t.nodes[id] = &node{parent: parent, name: name, nlookup: 1}
	t.byKey[k] = id
	return id
}

// Forget decrements a nodeid's lookup refcount by n, evicting it once it
// reaches zero. The root node is never evicted.
func (t *NodeTable) Forget(id uint64, n uint64) {
	if id == fuseproto.RootNodeID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	nd, ok := t.nodes[id]
	if !ok {
		return
	}
	if n >= nd.nlookup {
		delete(t.nodes, id)
		delete(t.byKey, key(nd.parent, nd.name))
		return
	}
	nd.nlookup -= n
}

// Rename repoints id's (parent, name) pair to its new location, without
// touching any other node -- descendants resolve through id unaffected.
func (t *NodeTable) Rename(id, newParent uint64, newName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nd, ok := t.nodes[id]
	if !ok {
		return
	}
	delete(t.byKey, key(nd.parent, nd.name))
	nd.parent = newParent
	nd.name = newName
	t.byKey[key(newParent, newName)] = id
}

// Path resolves id to a slash-separated path relative to the mount root by
// walking the parent chain. The root node resolves to "".
func (t *NodeTable) Path(id uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == fuseproto.RootNodeID {
		return "", true
	}

	var segs []string
	cur := id
	for {
		nd, ok := t.nodes[cur]
		if !ok {
			return "", false
		}
		if cur == fuseproto.RootNodeID {
			break
		}
		segs = append([]string{nd.name}, segs...)
		if nd.parent == fuseproto.RootNodeID {
			break
		}
		cur = nd.parent
	}

	path := ""
	for i, s := range segs {
		if i > 0 {
			path += "/"
		}
		path += s
	}
	return path, true
}

// Child looks up an already-allocated nodeid for (parent, name) without
// creating one or touching its refcount, used when an operation (rename's
// source, or a name just unlinked or removed) needs to know whether the
// kernel already has a handle on that name.
func (t *NodeTable) Child(parent uint64, name string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byKey[key(parent, name)]
	return id, ok
}
