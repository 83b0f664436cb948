package tree

import "github.com/syncrules/cloudsync/internal/domain"

// Indexes holds the secondary lookup structures a SyncSession maintains
// alongside the tree itself: indexes keyed by stable identifiers
// rather than back-pointers baked into the node. Both indexes are
// multimaps: fsid because inode reuse is possible in-flight, cloud
// handle for symmetry even though in practice at most one live node
// should hold a given handle.
//
// Every mutation goes through AttachFsid/DetachFsid and
// AttachHandle/DetachHandle so that Node.SetFsid/SetSyncedCloudHandle/
// SetParent can never leave a dangling or missing index entry.
type Indexes struct {
	fsid   map[domain.FSID]map[*Node]struct{}
	handle map[domain.CloudHandle]map[*Node]struct{}
}

func NewIndexes() *Indexes {
	return &Indexes{
		fsid:   make(map[domain.FSID]map[*Node]struct{}),
		handle: make(map[domain.CloudHandle]map[*Node]struct{}),
	}
}

func (ix *Indexes) AttachFsid(id domain.FSID, n *Node) {
	if !id.IsDefined() {
		return
	}
	set, ok := ix.fsid[id]
	if !ok {
		set = make(map[*Node]struct{})
		ix.fsid[id] = set
	}
	set[n] = struct{}{}
}

func (ix *Indexes) DetachFsid(id domain.FSID, n *Node) {
	if !id.IsDefined() {
		return
	}
	set, ok := ix.fsid[id]
	if !ok {
		return
	}
	delete(set, n)
	if len(set) == 0 {
		delete(ix.fsid, id)
	}
}

// LookupFsid returns every currently-indexed node with the given fsid.
func (ix *Indexes) LookupFsid(id domain.FSID) []*Node {
	set, ok := ix.fsid[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}

func (ix *Indexes) AttachHandle(h domain.CloudHandle, n *Node) {
	if !h.IsDefined() {
		return
	}
	set, ok := ix.handle[h]
	if !ok {
		set = make(map[*Node]struct{})
		ix.handle[h] = set
	}
	set[n] = struct{}{}
}

func (ix *Indexes) DetachHandle(h domain.CloudHandle, n *Node) {
	if !h.IsDefined() {
		return
	}
	set, ok := ix.handle[h]
	if !ok {
		return
	}
	delete(set, n)
	if len(set) == 0 {
		delete(ix.handle, h)
	}
}

func (ix *Indexes) LookupHandle(h domain.CloudHandle) []*Node {
	set, ok := ix.handle[h]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}
