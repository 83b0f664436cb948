package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/syncrules/cloudsync/internal/statecache"
	"github.com/syncrules/cloudsync/internal/tree"
)

// Committer batches Sync Tree mutations into state-cache writes. A
// node whose parent has not been written yet (DbID still 0) is
// deferred to the next sweep rather than written with a dangling
// ParentDbID, since new nodes are created top-down during a pass but
// there is no guarantee a parent directory's own row lands before its
// children's.
type Committer struct {
	store *statecache.Store

	mu       sync.Mutex
	insertQ  map[*tree.Node]struct{}
	deleteQ  map[int64]struct{}
}

// NewCommitter wraps store for staged insert/delete commits.
func NewCommitter(store *statecache.Store) *Committer {
	return &Committer{
		store:   store,
		insertQ: make(map[*tree.Node]struct{}),
		deleteQ: make(map[int64]struct{}),
	}
}

// StageInsert queues n to be written (inserted or updated) on the next
// Flush. Safe to call repeatedly for the same node before a flush; it
// is written once with its latest field values.
func (c *Committer) StageInsert(n *tree.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertQ[n] = struct{}{}
}

// StageDelete queues the row identified by dbID for removal. Callers
// must capture dbID before detaching/forgetting the node, since the
// node itself has nothing left to read from after that.
func (c *Committer) StageDelete(dbID int64) {
	if dbID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteQ[dbID] = struct{}{}
}

// Pending reports whether any inserts or deletes are queued.
func (c *Committer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.insertQ) > 0 || len(c.deleteQ) > 0
}

// Flush writes every staged insert and delete in as many transactions
// as it takes to resolve parent-before-child ordering, retrying
// deferred inserts until no more progress can be made.
func (c *Committer) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := make(map[*tree.Node]struct{}, len(c.insertQ))
	for n := range c.insertQ {
		pending[n] = struct{}{}
	}
	dels := make(map[int64]struct{}, len(c.deleteQ))
	for id := range c.deleteQ {
		dels[id] = struct{}{}
	}
	c.insertQ = make(map[*tree.Node]struct{})
	c.deleteQ = make(map[int64]struct{})
	c.mu.Unlock()

	for len(dels) > 0 {
		tx, err := c.store.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStateCacheUnusable, err)
		}
		for id := range dels {
			if err := c.store.Del(ctx, tx, id); err != nil {
				tx.Rollback()
				return fmt.Errorf("%w: %v", ErrStateCacheUnusable, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %v", ErrStateCacheUnusable, err)
		}
		dels = nil
	}

	for len(pending) > 0 {
		tx, err := c.store.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStateCacheUnusable, err)
		}
		var deferred []*tree.Node
		progressed := false
		for n := range pending {
			// The tree root is never written itself: its children are
			// stored with ParentDbID 0, which tree.Rehydrate maps back
			// to the root.
			var parentDbID int64
			if p := n.Parent(); p != nil && p.Parent() != nil {
				if p.DbID == 0 {
					deferred = append(deferred, n)
					continue
				}
				parentDbID = p.DbID
			}
			id, err := c.store.Put(ctx, tx, rowFromNode(n, parentDbID))
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("%w: %v", ErrStateCacheUnusable, err)
			}
			n.DbID = id
			progressed = true
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %v", ErrStateCacheUnusable, err)
		}
		if !progressed && len(deferred) > 0 {
			return ErrDeferFlushMadeNoProgress
		}
		next := make(map[*tree.Node]struct{}, len(deferred))
		for _, n := range deferred {
			next[n] = struct{}{}
		}
		pending = next
	}
	return nil
}

func rowFromNode(n *tree.Node, parentDbID int64) statecache.Row {
	return statecache.Row{
		DbID:              n.DbID,
		ParentDbID:        parentDbID,
		Localname:         n.Localname,
		Shortname:         n.Shortname,
		Type:              n.Type,
		Size:              n.Fingerprint.Size,
		ModTimeUnixNano:   n.Fingerprint.ModTime.UnixNano(),
		Fsid:              n.Fsid,
		SyncedCloudHandle: n.SyncedCloudHandle,
		FingerprintCRC:    n.Fingerprint.CRC,
	}
}
