// Package movedetect recognises a fresh row as the destination of a
// recent local or cloud move, using the Sync Tree's secondary indexes,
// rather than treating it as an unrelated delete+create.
package movedetect

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/tree"
	"github.com/syncrules/cloudsync/internal/triplet"
)

// FileUpdateDelay and FileUpdateMaxDelay implement the "file is
// changing" heuristic: a file modified very recently, or whose size
// the caller reports as still changing, has its move deferred until
// it stabilises, with a hard ceiling after which the move proceeds
// regardless.
const (
	FileUpdateDelay    = 3 * time.Second
	FileUpdateMaxDelay = 60 * time.Second
)

// CloudNodeByHandle resolves a cloud handle to the live cloud.Node
// describing it, backed by whatever cloud-tree cache the reconciler
// maintains.
type CloudNodeByHandle func(domain.CloudHandle) *cloud.Node

// Detector holds the collaborators and small amount of state (the
// file-is-changing watch list) the two detection directions need.
type Detector struct {
	FS         fsiface.FS
	Transport  cloud.Transport
	CloudNode  CloudNodeByHandle
	Now        func() time.Time

	mu           sync.Mutex
	firstObserved map[string]time.Time
}

// New creates a Detector. now defaults to time.Now when nil.
func New(fs fsiface.FS, transport cloud.Transport, cloudNode CloudNodeByHandle) *Detector {
	return &Detector{
		FS:            fs,
		Transport:     transport,
		CloudNode:     cloudNode,
		Now:           time.Now,
		firstObserved: make(map[string]time.Time),
	}
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// stabilised implements the file-is-changing heuristic: it returns
// false (defer) while a file is within FileUpdateDelay of its own
// mtime, unless the move has already been pending past
// FileUpdateMaxDelay since the detector first saw this row.
func (d *Detector) stabilised(key string, fs fsiface.FsNode) bool {
	if fs.Type != domain.FileTypeRegular {
		return true
	}
	now := d.now()

	d.mu.Lock()
	first, seen := d.firstObserved[key]
	if !seen {
		first = now
		d.firstObserved[key] = now
	}
	d.mu.Unlock()

	if now.Sub(first) >= FileUpdateMaxDelay {
		return true
	}
	return now.Sub(fs.ModTime) >= FileUpdateDelay
}

func (d *Detector) forget(key string) {
	d.mu.Lock()
	delete(d.firstObserved, key)
	d.mu.Unlock()
}

// candidate filters fsid-index matches down to plausible ones: same
// type, same owning session (trivially true since indexes are
// per-session), same volume, same drive letter where applicable, and
// for files the same mtime and size, which is the guard against acting
// on a reused inode. The volume is read from the candidate's parent
// directory, since its own old path is usually gone after a move; the
// check is skipped when that lookup fails.
func candidate(n *tree.Node, fs fsiface.FsNode, volFP uint64, drive string, fsDrive func(string) string, fsVol func(string) (uint64, error)) bool {
	if n.Type != fs.Type {
		return false
	}
	if fs.Type == domain.FileTypeRegular {
		if !n.Fingerprint.ModTime.Equal(fs.ModTime) || n.Fingerprint.Size != fs.Size {
			return false
		}
	}
	if fsDrive != nil && drive != "" && fsDrive(n.Path()) != drive {
		return false
	}
	if p := n.Parent(); fsVol != nil && p != nil {
		if v, err := fsVol(p.Path()); err == nil && v != volFP {
			return false
		}
	}
	return true
}

// DetectLocal implements the local-direction move detection.
// Callers invoke it when row.FsNode is present but either there is no
// SyncNode yet, or the existing SyncNode's fsid disagrees with
// row.FsNode.Fsid. destParent is the sync-tree parent this row lives
// under; destCloudParent is the cloud folder row.FsNode would sync into
// if this turns out not to be a move.
//
// It returns acted=true when it bound or renamed an existing SyncNode
// into this row, meaning the caller should skip the eight-case table
// entirely for this row.
func (d *Detector) DetectLocal(ctx context.Context, row *triplet.Row, session *tree.SyncSession, destParent *tree.Node, destCloudParent *cloud.Node) (acted bool, err error) {
	fs := row.FsNode
	if fs == nil {
		return false, nil
	}
	key := destParent.Path() + "/" + fs.Localname

	if fs.IsSymlink {
		destParent.SetScanBlocked(d.now())
		return false, nil
	}

	volFP, volErr := d.FS.VolumeFingerprint(destParent.Path())
	fsVol := d.FS.VolumeFingerprint
	if volErr != nil {
		fsVol = nil
	}
	drive := d.FS.DriveLetter(destParent.Path())

	matches := session.Indexes().LookupFsid(fs.Fsid)
	var filtered []*tree.Node
	for _, m := range matches {
		if candidate(m, *fs, volFP, drive, d.FS.DriveLetter, fsVol) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		// Likely inode reuse rather than a move: synthesize an
		// undefined fsid so downstream logic treats this as new.
		fs.Fsid = domain.UndefFSID
		return false, nil
	}
	sort.Slice(filtered, func(i, j int) bool { return string(filtered[i].SyncedCloudHandle) < string(filtered[j].SyncedCloudHandle) })
	matched := filtered[0]

	if !d.stabilised(key, *fs) {
		return false, nil
	}

	if !matched.SyncedCloudHandle.IsDefined() {
		// The match has no cloud binding yet; nothing to rename on
		// the remote side, so fall through to the normal table,
		// which will bind this row directly.
		return false, nil
	}

	src := d.CloudNode(matched.SyncedCloudHandle)
	if src == nil {
		return false, nil
	}
	if src.HasPendingChanges() {
		return false, nil
	}
	dst := destCloudParent
	if dst == nil {
		return false, nil
	}

	switch {
	case src.ParentHandle == dst.Handle && src.DisplayName == fs.Localname:
		// Already-completed move: both sides agree, just rebind.
	case src.ParentHandle == dst.Handle:
		if _, err := d.Transport.Rename(ctx, src, dst.Handle, cloud.DeleteModeNone, domain.UndefHandle, fs.Localname); err != nil {
			return false, err
		}
	default:
		ov := domain.UndefHandle
		if row.CloudNode != nil {
			if _, err := d.Transport.MoveToSyncDebris(ctx, row.CloudNode, false); err != nil {
				return false, err
			}
		}
		if _, err := d.Transport.Rename(ctx, src, dst.Handle, cloud.DeleteModeDebris, ov, fs.Localname); err != nil {
			return false, err
		}
	}

	matched.SetParent(destParent, fs.Localname, fs.Shortname, false)
	matched.SetFsid(fs.Fsid)
	session.MarkMovesActioned()
	d.forget(key)
	return true, nil
}

// DetectCloud implements the cloud-direction move detection.
// Callers invoke it when row.CloudNode is present but there is no
// SyncNode, or its bound handle is stale. destParent is the sync-tree
// parent this row lives under.
func (d *Detector) DetectCloud(ctx context.Context, row *triplet.Row, session *tree.SyncSession, destParent *tree.Node) (acted bool, err error) {
	cn := row.CloudNode
	if cn == nil {
		return false, nil
	}

	matches := session.Indexes().LookupHandle(cn.Handle)
	var matched *tree.Node
	for _, m := range matches {
		if m.Type == cn.Type {
			matched = m
			break
		}
	}
	if matched == nil {
		return false, nil
	}

	oldPath := matched.Path()
	if _, err := d.FS.Open(ctx, oldPath, false); err != nil {
		// Source no longer exists on disk: not a move we can act on
		// here, let the eight-case table handle it as a fresh create.
		return false, nil
	}

	newName := cn.DisplayName
	newPath := destParent.Path() + "/" + newName

	result, err := d.FS.Rename(ctx, oldPath, newPath)
	if err != nil {
		if fsiface.IsTransient(err) {
			matched.SetUseBlocked(d.now())
			return false, nil
		}
		return false, err
	}
	if !result.OK {
		if result.Transient {
			matched.SetUseBlocked(d.now())
			return false, nil
		}
		return false, nil
	}

	oldParent := matched.Parent()
	if oldParent != nil {
		oldParent.SetFutureScan(true, false)
	}
	destParent.SetFutureScan(true, false)
	session.MarkMovesActioned()
	return true, nil
}
