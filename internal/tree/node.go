package tree

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/syncrules/cloudsync/internal/domain"
)

// NodeFlags bundles the five tri/quad-state flags a SyncNode carries
// plus the rarely-needed backoff bookkeeping for the blocked ones. The
// backoff pointer is nil until a node is first blocked, so an
// unblocked node costs nothing beyond the five small enums.
type NodeFlags struct {
	ScanAgain   TreeState
	SyncAgain   TreeState
	UseBlocked  TreeState
	ScanBlocked TreeState
	Conflicts   TreeState

	useBackoff  *backoffState
	scanBackoff *backoffState
}

// Node is one entry in the persistent Sync Tree: the reconciled view of
// a single path, with parent/child links and the flag state the
// scheduler uses to decide what needs attention. The root Node's
// Localname is an absolute path; every other node's Localname is a
// single path component.
type Node struct {
	Localname string
	Shortname string

	// LastObservedName is the name under which this node was last
	// seen on disk, used to detect database-vs-disk shortname drift.
	LastObservedName string

	Type domain.FileType

	Fsid              domain.FSID
	SyncedCloudHandle domain.CloudHandle

	// Fingerprint is valid for file nodes whenever SyncedCloudHandle
	// is set and the node is not mid-transfer.
	Fingerprint domain.Fingerprint

	Flags NodeFlags

	// DbID is the state-cache row identifier, 0 until persisted.
	DbID int64

	parent         *Node
	children       map[string]*Node
	shortnameIndex map[string]*Node

	session *SyncSession
}

// NewRoot creates the root Node of a fresh Sync Tree. absPath must be an
// absolute path.
func NewRoot(absPath string) *Node {
	return &Node{
		Localname: absPath,
		Type:      domain.FileTypeDirectory,
		children:  make(map[string]*Node),
	}
}

// newChild allocates a detached child node; callers attach it via
// SetParent.
func newChild(name string) *Node {
	return &Node{
		Localname: name,
		children:  make(map[string]*Node),
	}
}

// Child looks up an existing child by its case-sensitive localname.
func (n *Node) Child(name string) *Node {
	if n.children == nil {
		return nil
	}
	return n.children[name]
}

// ShortnameChild looks up a child by its secondary shortname index,
// which only holds entries whose shortname differs from their
// localname.
func (n *Node) ShortnameChild(name string) *Node {
	if n.shortnameIndex == nil {
		return nil
	}
	return n.shortnameIndex[name]
}

// Children returns this node's children sorted by localname
// (case-sensitive), matching the ordering the Triplet Builder expects
// as its SyncParent.children input.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Localname < out[j].Localname })
	return out
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) IsDir() bool  { return n.Type == domain.FileTypeDirectory }
func (n *Node) IsFile() bool { return n.Type == domain.FileTypeRegular }

// Path reconstructs n's absolute local path by walking up to the root
// and joining path components, since only the root's Localname is an
// absolute path and every other node stores just its single path
// component.
func (n *Node) Path() string {
	var parts []string
	cur := n
	for cur.parent != nil {
		parts = append(parts, cur.Localname)
		cur = cur.parent
	}
	path := cur.Localname
	for i := len(parts) - 1; i >= 0; i-- {
		path = filepath.Join(path, parts[i])
	}
	return path
}

// attachToParent wires n into parent's children (and shortname index,
// if applicable) without touching any secondary session index. Callers
// must hold the session's tree mutex.
func (n *Node) attachToParent(parent *Node, name, shortname string) {
	n.parent = parent
	n.Localname = name
	n.Shortname = shortname
	if parent.children == nil {
		parent.children = make(map[string]*Node)
	}
	parent.children[name] = n
	if shortname != "" && shortname != name {
		if parent.shortnameIndex == nil {
			parent.shortnameIndex = make(map[string]*Node)
		}
		parent.shortnameIndex[shortname] = n
	}
}

// detachFromParent is the inverse of attachToParent.
func (n *Node) detachFromParent() {
	if n.parent == nil {
		return
	}
	delete(n.parent.children, n.Localname)
	if n.Shortname != "" && n.Shortname != n.Localname {
		delete(n.parent.shortnameIndex, n.Shortname)
	}
	n.parent = nil
}

// NewChild creates and attaches a fresh Node as a child of n, indexing
// it in the owning SyncSession. This is how the reconciler materializes
// a SyncNode for a row that had none before (the create-from-fs /
// create-from-cloud cases).
func (n *Node) NewChild(name, shortname string) *Node {
	if n.session != nil {
		n.session.mu.Lock()
		defer n.session.mu.Unlock()
	}
	c := newChild(name)
	c.session = n.session
	c.attachToParent(n, name, shortname)
	return c
}

// SetParent is the only mutation that rewrites a node's position in the
// tree. It detaches n from its current parent (if any), reattaches it
// under newParent with newName/newShortname, and — when applyToCloud is
// true and the node is bound to a cloud handle — returns true so the
// caller issues the matching cloud rename/move command. It takes the
// owning session's tree mutex so it is atomic against a concurrent
// reconciler traversal of the parent.
func (n *Node) SetParent(newParent *Node, newName, newShortname string, applyToCloud bool) (needsCloudRename bool) {
	if n.session != nil {
		n.session.mu.Lock()
		defer n.session.mu.Unlock()
	}
	n.detachFromParent()
	n.attachToParent(newParent, newName, newShortname)
	return applyToCloud && n.SyncedCloudHandle.IsDefined()
}

// Remove detaches n from its parent and clears its secondary index
// entries, for a SyncNode whose row has vanished from every view and
// is being dropped from the tree entirely. Unlike SetParent, it never
// reattaches n anywhere.
func (n *Node) Remove() {
	if n.session != nil {
		n.session.mu.Lock()
	}
	n.detachFromParent()
	if n.session != nil {
		n.session.mu.Unlock()
	}
	n.SetFsid(domain.UndefFSID)
	n.SetSyncedCloudHandle(domain.UndefHandle)
}

// SetFsid updates n's filesystem id and keeps the owning session's fsid
// multimap consistent.
func (n *Node) SetFsid(id domain.FSID) {
	if n.session != nil {
		n.session.indexes.DetachFsid(n.Fsid, n)
	}
	n.Fsid = id
	if n.session != nil {
		n.session.indexes.AttachFsid(id, n)
	}
}

// SetSyncedCloudHandle updates n's bound cloud handle and keeps the
// owning session's cloud-handle multimap consistent.
func (n *Node) SetSyncedCloudHandle(h domain.CloudHandle) {
	if n.session != nil {
		n.session.indexes.DetachHandle(n.SyncedCloudHandle, n)
	}
	n.SyncedCloudHandle = h
	if n.session != nil {
		n.session.indexes.AttachHandle(h, n)
	}
}

// SetFutureScan raises n's scanAgain flag and,, walks to
// the root raising every ancestor to at least DescendantFlagged so
// higher levels know a descendant needs attention.
func (n *Node) SetFutureScan(here, below bool) {
	n.Flags.ScanAgain = raiseFlag(here, below)
	n.propagateToRoot()
}

// SetFutureSync is the syncAgain analogue of SetFutureScan.
func (n *Node) SetFutureSync(here, below bool) {
	n.Flags.SyncAgain = raiseFlag(here, below)
	n.propagateToRoot()
}

// SetUseBlocked marks n blocked for local-side use (open/rename
// failures) and lazily allocates its backoff timer.
func (n *Node) SetUseBlocked(now time.Time) {
	n.Flags.UseBlocked = ActionHere
	if n.Flags.useBackoff == nil {
		n.Flags.useBackoff = newBackoffState(now)
	} else {
		n.Flags.useBackoff.arm(now)
	}
	n.propagateToRoot()
}

// SetScanBlocked marks n blocked for scanning (see the pre-checks)
// and lazily allocates its backoff timer.
func (n *Node) SetScanBlocked(now time.Time) {
	n.Flags.ScanBlocked = ActionHere
	if n.Flags.scanBackoff == nil {
		n.Flags.scanBackoff = newBackoffState(now)
	} else {
		n.Flags.scanBackoff.arm(now)
	}
	n.propagateToRoot()
}

// ClearUseBlocked resolves the useBlocked flag, dropping its backoff
// state; called by a successful operation at or below the node.
func (n *Node) ClearUseBlocked() {
	n.Flags.UseBlocked = Resolved
	n.Flags.useBackoff = nil
}

func (n *Node) ClearScanBlocked() {
	n.Flags.ScanBlocked = Resolved
	n.Flags.scanBackoff = nil
}

// UseBlockedReady reports whether n's useBlocked backoff timer has
// armed (or there is none, i.e. it was never blocked).
func (n *Node) UseBlockedReady(now time.Time) bool {
	if n.Flags.useBackoff == nil {
		return true
	}
	return n.Flags.useBackoff.ready(now)
}

func (n *Node) ScanBlockedReady(now time.Time) bool {
	if n.Flags.scanBackoff == nil {
		return true
	}
	return n.Flags.scanBackoff.ready(now)
}

// propagateToRoot walks from n up to the tree root, raising every
// ancestor to at least DescendantFlagged. It stops early
// once an ancestor is already at DescendantFlagged or higher, since
// aggregation never lowers urgency and a further walk would be
// redundant.
func (n *Node) propagateToRoot() {
	for p := n.parent; p != nil; p = p.parent {
		if p.Flags.ScanAgain != Resolved && p.Flags.SyncAgain != Resolved {
			return
		}
		if p.Flags.ScanAgain == Resolved {
			p.Flags.ScanAgain = DescendantFlagged
		}
		if p.Flags.SyncAgain == Resolved {
			p.Flags.SyncAgain = DescendantFlagged
		}
	}
}

// SetSession binds n (and, recursively, its already-attached
// descendants) to session, populating the secondary indexes. Used when
// rehydrating a tree from the state cache, where nodes are constructed
// before a session exists to own them.
func (n *Node) SetSession(s *SyncSession) {
	n.session = s
	if n.Fsid.IsDefined() {
		s.indexes.AttachFsid(n.Fsid, n)
	}
	if n.SyncedCloudHandle.IsDefined() {
		s.indexes.AttachHandle(n.SyncedCloudHandle, n)
	}
	for _, c := range n.children {
		c.SetSession(s)
	}
}
