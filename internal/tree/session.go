package tree

import (
	"context"
	"sync"
	"time"

	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/statecache"
)

// Status is the lifecycle state of a SyncSession.
type Status int

const (
	StatusActive Status = iota
	StatusCanceled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SyncSession is the unique owner of one Sync Tree, its secondary
// indexes, and the session identity used to derive the state-cache
// table name. All mutation of the tree or its indexes goes through a
// single mutex, since only one reconciler thread is meant to drive a
// given session; taking the lock here is what makes that hold even
// when tests or tooling touch the tree from another goroutine.
type SyncSession struct {
	mu sync.Mutex

	Root    *Node
	indexes *Indexes
	status  Status

	// RootFsid, RootCloudHandle and UserID identify this session for
	// the state-cache table name: base64(fsid ∥
	// rootCloudHandle ∥ userID).
	RootFsid        uint64
	RootCloudHandle string
	UserID          string

	// actionedMovesRenames / scansAndMovesComplete gate destructive
	// decisions until a full pass without new moves settles. They
	// live here rather than on a global client object because each
	// session reconciles independently.
	actionedMovesRenames bool
}

// NewSession creates a SyncSession rooted at absPath and wires the root
// node into it.
func NewSession(absPath string) *SyncSession {
	s := &SyncSession{
		Root:    NewRoot(absPath),
		indexes: NewIndexes(),
	}
	s.Root.session = s
	return s
}

func (s *SyncSession) Indexes() *Indexes { return s.indexes }
func (s *SyncSession) Status() Status    { return s.status }

// Lock/Unlock expose the session's single tree mutex to callers (the
// reconciler's own goroutine loop, or a test driving the tree directly)
// so SetParent and friends stay atomic against a concurrent traversal.
func (s *SyncSession) Lock()   { s.mu.Lock() }
func (s *SyncSession) Unlock() { s.mu.Unlock() }

// MarkMovesActioned records that this pass issued at least one move or
// rename; ScansAndMovesComplete reports the stabilised state once a
// caller has observed a full pass with none.
func (s *SyncSession) MarkMovesActioned() { s.actionedMovesRenames = true }

// ResetMovesActioned clears the per-pass flag; called once at the start
// of each top-level reconciliation pass.
func (s *SyncSession) ResetMovesActioned() { s.actionedMovesRenames = false }

// ScansAndMovesComplete reports whether the most recently completed
// pass actioned no moves/renames, i.e. it is safe to treat a vanished
// fs or cloud entry as a real deletion rather than a move still
// settling.
func (s *SyncSession) ScansAndMovesComplete() bool { return !s.actionedMovesRenames }

// Cancel transitions the session to Canceled. Callers are
// expected to have already stopped issuing new scans/transfers before
// calling this; Cancel only flips the status so in-flight work can
// observe it and wind down.
func (s *SyncSession) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusActive {
		s.status = StatusCanceled
	}
	return ctx.Err()
}

// Rehydrate rebuilds a SyncSession's tree from rows previously flushed
// to the state cache, in the order Store.Rewind yields them, so a
// child's parent row is always rebuilt before the child looks it up.
// A row whose parent was never seen (truncated history, a bug in a
// prior flush) is dropped rather than reattached somewhere it doesn't
// belong; the next scan will simply recreate it as a fresh entry.
func Rehydrate(absPath string, rows []statecache.Row) *SyncSession {
	session := NewSession(absPath)
	byDbID := map[int64]*Node{0: session.Root}
	for _, r := range rows {
		parent, ok := byDbID[r.ParentDbID]
		if !ok {
			continue
		}
		n := newChild(r.Localname)
		n.Type = r.Type
		n.Fsid = r.Fsid
		n.SyncedCloudHandle = r.SyncedCloudHandle
		n.Fingerprint = domain.Fingerprint{
			Size:    r.Size,
			ModTime: time.Unix(0, r.ModTimeUnixNano),
			CRC:     r.FingerprintCRC,
		}
		n.DbID = r.DbID
		n.attachToParent(parent, r.Localname, r.Shortname)
		byDbID[r.DbID] = n
	}

	session.Root.SetSession(session)
	return session
}

// Fail transitions the session to Failed (the fatal error kind,
// e.g. the state cache could not be opened).
func (s *SyncSession) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
}
