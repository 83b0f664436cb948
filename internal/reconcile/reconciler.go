// Package reconcile drives the reconciliation engine: it walks the
// Sync Tree one directory at a time, keeps it in step with fresh scans
// and the cloud-side view, runs the move detector ahead of the
// eight-case transition table, and issues transfers/renames/deletes to
// converge the three views onto one another.
package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/debris"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/logger"
	"github.com/syncrules/cloudsync/internal/movedetect"
	"github.com/syncrules/cloudsync/internal/progress"
	"github.com/syncrules/cloudsync/internal/scan"
	"github.com/syncrules/cloudsync/internal/transfer"
	"github.com/syncrules/cloudsync/internal/tree"
	"github.com/syncrules/cloudsync/internal/triplet"
)

// folderScan is the ephemeral per-directory state the reconciler keeps
// outside the Sync Tree itself: the outstanding scan request (if any)
// and the most recent completed scan's results, kept around until a
// pass over the directory finishes cleanly.
type folderScan struct {
	request   *scan.Request
	gatedAt   time.Time
	results   []fsiface.FsNode
	haveScan  bool
}

// Reconciler owns one pass of the reconciliation engine over a single
// SyncSession. It is not safe for concurrent use by more than one
// goroutine at a time, matching the single-writer-reconciler-thread
// rule the session's own mutex enforces on tree mutation.
type Reconciler struct {
	FS           fsiface.FS
	Pool         *scan.Pool
	Transport    cloud.Transport
	Transfer     transfer.Subsystem
	MoveDetector *movedetect.Detector
	Policy       ConflictPolicy
	Committer    *Committer
	Folding      triplet.CaseFolding
	Now          func() time.Time
	Reporter     progress.Reporter

	// Mode gates which direction(s) a row may act in. Its zero value
	// (like domain.SyncModeTwoWay) reconciles bidirectionally;
	// LocalIsSource only matters for the two one-way modes and says
	// whether this Reconciler's FS side is the rule's source endpoint.
	Mode          domain.SyncMode
	LocalIsSource bool

	mu     sync.Mutex
	scans  map[*tree.Node]*folderScan
}

// canUpsync reports whether this pass may push a local-side change to
// the cloud side (upload a file, create a cloud folder, delete a cloud
// node that vanished locally).
func (r *Reconciler) canUpsync() bool {
	switch r.Mode {
	case domain.SyncModeOneWayPush:
		return r.LocalIsSource
	case domain.SyncModeOneWayPull:
		return !r.LocalIsSource
	default:
		return true
	}
}

// canDownsync reports whether this pass may pull a cloud-side change to
// the local side (download a file, create a local folder, delete a
// local entry that vanished on the cloud side).
func (r *Reconciler) canDownsync() bool {
	switch r.Mode {
	case domain.SyncModeOneWayPush:
		return !r.LocalIsSource
	case domain.SyncModeOneWayPull:
		return r.LocalIsSource
	default:
		return true
	}
}

// New builds a Reconciler with sane defaults for Policy/Now/Reporter
// when the caller leaves them unset.
func New(fs fsiface.FS, pool *scan.Pool, transport cloud.Transport, xfer transfer.Subsystem, detector *movedetect.Detector, committer *Committer) *Reconciler {
	return &Reconciler{
		FS:           fs,
		Pool:         pool,
		Transport:    transport,
		Transfer:     xfer,
		MoveDetector: detector,
		Policy:       DefaultPolicy{},
		Committer:    committer,
		Now:          time.Now,
		Reporter:     progress.NullReporter{},
		scans:        make(map[*tree.Node]*folderScan),
	}
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reconciler) scanState(n *tree.Node) *folderScan {
	r.mu.Lock()
	defer r.mu.Unlock()
	fs, ok := r.scans[n]
	if !ok {
		fs = &folderScan{}
		r.scans[n] = fs
	}
	return fs
}

func (r *Reconciler) clearScanState(n *tree.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scans, n)
}

// RecursiveSync reconciles one directory and, depth-first, every
// subdirectory beneath it that isn't held back by a pending cloud-side
// mutation. dirRow is the triplet row for the directory itself (its
// three views having already been aligned by the caller, or by a
// previous call's recursive pass); localPath is its absolute local
// path. It returns true once the directory and everything below it
// needs no further attention this pass.
func (r *Reconciler) RecursiveSync(ctx context.Context, session *tree.SyncSession, dirRow *triplet.Row, localPath string) (bool, error) {
	syncNode := dirRow.SyncNode
	if syncNode == nil {
		return false, nil
	}

	for _, child := range syncNode.Children() {
		child.Flags.ScanAgain = tree.PropagateSubtreeFlag(syncNode.Flags.ScanAgain, child.Flags.ScanAgain)
		child.Flags.SyncAgain = tree.PropagateSubtreeFlag(syncNode.Flags.SyncAgain, child.Flags.SyncAgain)
	}

	st := r.scanState(syncNode)
	if syncNode.Flags.ScanAgain >= tree.ActionHere {
		if err := r.driveScan(ctx, syncNode, localPath, st); err != nil {
			return false, err
		}
	}

	var effectiveChildren []fsiface.FsNode
	if st.haveScan {
		effectiveChildren = st.results
	} else {
		effectiveChildren = reprojectChildren(syncNode)
	}

	rows := triplet.Build(dirRow.CloudNode, syncNode, effectiveChildren, r.Folding)

	suppressed := dirRow.CloudNode != nil && dirRow.CloudNode.HasPendingChanges()
	scanOutstanding := st.haveScanPending() || syncNode.Flags.ScanAgain >= tree.ActionHere
	allSynced := !suppressed && !scanOutstanding

	session.ResetMovesActioned()

	for i := range rows {
		row := &rows[i]
		if suppressed {
			allSynced = false
			continue
		}
		if len(row.FsClashes) > 0 || len(row.CloudClashes) > 0 {
			if row.SyncNode != nil && row.SyncNode.Flags.Conflicts < tree.ActionHere {
				row.SyncNode.Flags.Conflicts = tree.ActionHere
			}
			allSynced = false
			continue
		}
		synced, err := r.syncItem(ctx, session, row, syncNode, localPath)
		if err != nil {
			kind := Classify(err)
			if kind == ErrorKindFatal {
				return false, err
			}
			logger.Get().Warn("syncItem error", "path", localPath, "err", err)
			allSynced = false
			continue
		}
		if !synced {
			allSynced = false
		}
	}

	for i := range rows {
		row := &rows[i]
		if row.SyncNode == nil || !row.SyncNode.IsDir() || row.SuppressRecursion {
			continue
		}
		childPath := filepath.Join(localPath, row.SyncNode.Localname)
		synced, err := r.RecursiveSync(ctx, session, row, childPath)
		if err != nil {
			return false, err
		}
		if !synced {
			allSynced = false
		}
		syncNode.Flags.ScanAgain = tree.UpdateTreestateFromChild(syncNode.Flags.ScanAgain, row.SyncNode.Flags.ScanAgain)
		syncNode.Flags.SyncAgain = tree.UpdateTreestateFromChild(syncNode.Flags.SyncAgain, row.SyncNode.Flags.SyncAgain)
		syncNode.Flags.Conflicts = tree.UpdateTreestateFromChild(syncNode.Flags.Conflicts, row.SyncNode.Flags.Conflicts)
	}

	if allSynced {
		r.clearScanState(syncNode)
	}
	return allSynced, nil
}

func (fs *folderScan) haveScanPending() bool {
	return fs.request != nil && !fs.request.Completed()
}

// driveScan advances this directory's scan state machine by one step:
// issue a fresh scan once the gate delay has elapsed, or harvest an
// outstanding one that has finished.
func (r *Reconciler) driveScan(ctx context.Context, syncNode *tree.Node, localPath string, st *folderScan) error {
	if st.request != nil {
		if !st.request.Completed() {
			return nil
		}
		results, err := st.request.Results()
		st.request = nil
		if err != nil {
			if fsiface.IsTransient(err) {
				syncNode.SetScanBlocked(r.now())
				return nil
			}
			return fmt.Errorf("scanning %s: %w", localPath, err)
		}
		st.results = results
		st.haveScan = true
		syncNode.Flags.ScanAgain = tree.Resolved
		syncNode.SetFutureSync(true, false)
		return nil
	}

	now := r.now()
	if st.gatedAt.IsZero() {
		st.gatedAt = now
	}
	if now.Sub(st.gatedAt) < ScanGateDelay {
		return nil
	}
	known := knownFingerprints(syncNode)
	st.request = r.Pool.Scan(r.FS, localPath, localPath, known)
	st.gatedAt = time.Time{}
	return nil
}

// knownFingerprints builds the name→FsNode map the scan worker uses to
// avoid rehashing unchanged children, from what the Sync Tree already
// believes about each child.
func knownFingerprints(syncNode *tree.Node) map[string]fsiface.FsNode {
	children := syncNode.Children()
	out := make(map[string]fsiface.FsNode, len(children))
	for _, c := range children {
		out[c.Localname] = fsiface.FsNode{
			Localname:   c.Localname,
			Type:        c.Type,
			Size:        c.Fingerprint.Size,
			ModTime:     c.Fingerprint.ModTime,
			Fsid:        c.Fsid,
			Fingerprint: c.Fingerprint,
		}
	}
	return out
}

// reprojectChildren stands in for a scan's results when no fresh scan
// is available this pass, so rows still reflect what is already known
// about each child rather than appearing to have vanished.
func reprojectChildren(syncNode *tree.Node) []fsiface.FsNode {
	children := syncNode.Children()
	out := make([]fsiface.FsNode, 0, len(children))
	for _, c := range children {
		if !c.Fsid.IsDefined() {
			continue
		}
		out = append(out, fsiface.FsNode{
			Localname:   c.Localname,
			Shortname:   c.Shortname,
			Type:        c.Type,
			Size:        c.Fingerprint.Size,
			ModTime:     c.Fingerprint.ModTime,
			Fsid:        c.Fsid,
			Fingerprint: c.Fingerprint,
		})
	}
	return out
}

// syncItem applies the pre-checks, move-detection gate and eight-case
// transition table to a single row. It returns true once the row needs
// no further attention this pass.
func (r *Reconciler) syncItem(ctx context.Context, session *tree.SyncSession, row *triplet.Row, parent *tree.Node, parentPath string) (bool, error) {
	sn, fsn, cn := row.SyncNode, row.FsNode, row.CloudNode
	now := r.now()

	if sn != nil {
		if sn.Flags.UseBlocked >= tree.ActionHere {
			if !sn.UseBlockedReady(now) {
				return false, nil
			}
			sn.ClearUseBlocked()
		}
		if sn.Flags.ScanBlocked >= tree.ActionHere {
			if !sn.ScanBlockedReady(now) {
				return false, nil
			}
			sn.ClearScanBlocked()
			parent.SetFutureScan(true, false)
			return false, nil
		}
		if fsn != nil && sn.Shortname != fsn.Shortname {
			sn.Shortname = fsn.Shortname
		}
		if sn.Type == domain.FileTypeUnknown && fsn != nil && fsn.Type != domain.FileTypeUnknown {
			sn.Type = fsn.Type
		}
	}

	if fsn != nil && (fsn.Type == domain.FileTypeUnknown || fsn.IsBlocked) {
		if sn == nil {
			sn = parent.NewChild(fsn.Localname, fsn.Shortname)
			row.SyncNode = sn
		}
		sn.SetScanBlocked(now)
		return false, nil
	}

	fsidMismatch := fsn != nil && (sn == nil || sn.Fsid != fsn.Fsid)
	handleMismatch := cn != nil && (sn == nil || sn.SyncedCloudHandle != cn.Handle)
	if (fsidMismatch || handleMismatch) && r.MoveDetector != nil {
		if fsn != nil && fsidMismatch {
			var destCloudParent *cloud.Node
			if parent.SyncedCloudHandle.IsDefined() {
				destCloudParent = &cloud.Node{Handle: parent.SyncedCloudHandle}
			}
			acted, err := r.MoveDetector.DetectLocal(ctx, row, session, parent, destCloudParent)
			if err != nil {
				return false, err
			}
			if acted {
				return true, nil
			}
		}
		if cn != nil && handleMismatch {
			acted, err := r.MoveDetector.DetectCloud(ctx, row, session, parent)
			if err != nil {
				return false, err
			}
			if acted {
				return true, nil
			}
		}
	}

	switch {
	case sn != nil && fsn != nil && cn != nil:
		return r.syncAllThree(ctx, row, parent, parentPath)
	case sn != nil && fsn != nil && cn == nil:
		return r.syncLocalOnly(ctx, session, row, parent, parentPath)
	case sn != nil && fsn == nil && cn != nil:
		return r.syncCloudOnly(ctx, session, row, parent, parentPath)
	case sn != nil && fsn == nil && cn == nil:
		return r.syncNeither(ctx, session, row, parent)
	case sn == nil && fsn != nil && cn != nil:
		return r.bindFresh(ctx, row, parent, parentPath)
	case sn == nil && fsn != nil && cn == nil:
		row.SyncNode = parent.NewChild(fsn.Localname, fsn.Shortname)
		row.SyncNode.Type = fsn.Type
		return false, nil
	case sn == nil && fsn == nil && cn != nil:
		row.SyncNode = parent.NewChild(cn.DisplayName, "")
		row.SyncNode.Type = cn.Type
		return false, nil
	default:
		return true, nil
	}
}

// syncAllThree handles a row present in all three views: unchanged,
// upsync, downsync, or genuine divergence.
func (r *Reconciler) syncAllThree(ctx context.Context, row *triplet.Row, parent *tree.Node, parentPath string) (bool, error) {
	sn, fsn, cn := row.SyncNode, row.FsNode, row.CloudNode

	if sn.IsDir() {
		sn.SetFsid(fsn.Fsid)
		sn.SetSyncedCloudHandle(cn.Handle)
		r.Committer.StageInsert(sn)
		return true, nil
	}

	localChanged := !fingerprintFromFs(*fsn).Equal(sn.Fingerprint)
	cloudChanged := !cn.Fingerprint.Equal(sn.Fingerprint)

	switch {
	case !localChanged && !cloudChanged:
		sn.SetFsid(fsn.Fsid)
		sn.SetSyncedCloudHandle(cn.Handle)
		r.Committer.StageInsert(sn)
		return true, nil
	case localChanged && !cloudChanged:
		if !r.canUpsync() {
			return false, nil
		}
		return r.upsync(ctx, sn, fsn, cn, parentPath)
	case !localChanged && cloudChanged:
		if !r.canDownsync() {
			return false, nil
		}
		return r.downsync(ctx, sn, cn, parentPath)
	default:
		r.Policy.ResolveDivergence(row)
		return false, nil
	}
}

// syncLocalOnly handles a row with a SyncNode and an fs entry but no
// cloud counterpart: either it was never uploaded, or the cloud side
// deleted it and the local copy should follow it into debris.
func (r *Reconciler) syncLocalOnly(ctx context.Context, session *tree.SyncSession, row *triplet.Row, parent *tree.Node, parentPath string) (bool, error) {
	sn, fsn := row.SyncNode, row.FsNode
	if !sn.SyncedCloudHandle.IsDefined() {
		if !r.canUpsync() {
			return false, nil
		}
		if sn.IsDir() {
			return r.createCloudFolder(ctx, sn, parent, fsn)
		}
		return r.upsync(ctx, sn, fsn, nil, parentPath)
	}
	if !session.ScansAndMovesComplete() {
		return false, nil
	}
	if !r.canDownsync() {
		return false, nil
	}
	synced, err := r.deleteLocal(ctx, sn, parent, parentPath)
	if synced {
		row.SyncNode = nil
	}
	return synced, err
}

// syncCloudOnly handles a row with a SyncNode and a cloud entry but no
// fs counterpart: either it was never downloaded, or the local copy
// was deleted and the cloud side should follow it into debris.
func (r *Reconciler) syncCloudOnly(ctx context.Context, session *tree.SyncSession, row *triplet.Row, parent *tree.Node, parentPath string) (bool, error) {
	sn, cn := row.SyncNode, row.CloudNode
	if !sn.Fsid.IsDefined() {
		if !r.canDownsync() {
			return false, nil
		}
		if sn.IsDir() {
			return r.createLocalFolder(ctx, sn, parentPath)
		}
		return r.downsync(ctx, sn, cn, parentPath)
	}
	if !session.ScansAndMovesComplete() {
		return false, nil
	}
	if !r.canUpsync() {
		return false, nil
	}
	synced, err := r.deleteCloud(ctx, sn, cn)
	if synced {
		row.SyncNode = nil
	}
	return synced, err
}

// syncNeither handles a SyncNode with neither an fs nor a cloud
// counterpart left: it is fully gone and, once no move could still be
// in flight, is dropped from the tree and the state cache.
func (r *Reconciler) syncNeither(ctx context.Context, session *tree.SyncSession, row *triplet.Row, parent *tree.Node) (bool, error) {
	if !session.ScansAndMovesComplete() {
		return false, nil
	}
	sn := row.SyncNode
	if sn.DbID != 0 {
		r.Committer.StageDelete(sn.DbID)
	}
	sn.Remove()
	row.SyncNode = nil
	return true, nil
}

// bindFresh handles a row with no SyncNode but a matching fs entry and
// cloud entry already present on both sides — the first time the
// reconciler has seen this pairing, e.g. after importing a state cache
// that predates this row, or a state-cache rebuild from scratch.
func (r *Reconciler) bindFresh(ctx context.Context, row *triplet.Row, parent *tree.Node, parentPath string) (bool, error) {
	fsn, cn := row.FsNode, row.CloudNode
	if fsn.Type != cn.Type {
		if row.SyncNode == nil {
			row.SyncNode = parent.NewChild(fsn.Localname, fsn.Shortname)
		}
		r.Policy.ResolveDivergence(row)
		return false, nil
	}

	sn := parent.NewChild(fsn.Localname, fsn.Shortname)
	sn.Type = fsn.Type
	row.SyncNode = sn

	if sn.IsDir() {
		sn.SetFsid(fsn.Fsid)
		sn.SetSyncedCloudHandle(cn.Handle)
		r.Committer.StageInsert(sn)
		return true, nil
	}

	fsFP := fingerprintFromFs(*fsn)
	if fsFP.Equal(cn.Fingerprint) {
		sn.Fingerprint = fsFP
		sn.SetFsid(fsn.Fsid)
		sn.SetSyncedCloudHandle(cn.Handle)
		r.Committer.StageInsert(sn)
		return true, nil
	}

	// The two sides disagree on content. Bind the node to both
	// identities now so the next pass's triplet row finds it, then
	// actually land the winner's bytes on the loser's side instead of
	// merely recording a fingerprint — otherwise sn.Fingerprint stays
	// zero and the next syncAllThree pass sees both sides as
	// "changed" and falls through to ResolveDivergence regardless of
	// which side won.
	sn.SetFsid(fsn.Fsid)
	sn.SetSyncedCloudHandle(cn.Handle)
	r.Committer.StageInsert(sn)

	switch r.resolveWinner(fsFP, cn.Fingerprint) {
	case WinnerLocal:
		return r.upsync(ctx, sn, fsn, cn, parentPath)
	default:
		return r.downsync(ctx, sn, cn, parentPath)
	}
}

// resolveWinner picks the content winner for a fresh bind with
// differing fingerprints on each side. A one-way rule always lets its
// source side win, regardless of mtime, since the non-source side is
// never supposed to originate content; a two-way rule defers to Policy.
func (r *Reconciler) resolveWinner(fs, cloud domain.Fingerprint) Winner {
	switch r.Mode {
	case domain.SyncModeOneWayPush:
		if r.LocalIsSource {
			return WinnerLocal
		}
		return WinnerCloud
	case domain.SyncModeOneWayPull:
		if r.LocalIsSource {
			return WinnerCloud
		}
		return WinnerLocal
	default:
		return r.Policy.ResolveWinner(fs, cloud)
	}
}

func fingerprintFromFs(fsn fsiface.FsNode) domain.Fingerprint {
	if !fsn.Fingerprint.IsZero() {
		return fsn.Fingerprint
	}
	return domain.Fingerprint{Size: fsn.Size, ModTime: fsn.ModTime}
}

func (r *Reconciler) createCloudFolder(ctx context.Context, sn *tree.Node, parent *tree.Node, fsn *fsiface.FsNode) (bool, error) {
	if !parent.SyncedCloudHandle.IsDefined() {
		return false, nil
	}
	newNode := &cloud.Node{DisplayName: sn.Localname, Type: domain.FileTypeDirectory}
	_, err := r.Transport.PutFolder(ctx, parent.SyncedCloudHandle, newNode)
	if err != nil {
		return false, err
	}
	sn.SetFsid(fsn.Fsid)
	r.Committer.StageInsert(sn)
	return false, nil
}

func (r *Reconciler) createLocalFolder(ctx context.Context, sn *tree.Node, parentPath string) (bool, error) {
	path := filepath.Join(parentPath, sn.Localname)
	if err := r.FS.Mkdir(ctx, path); err != nil {
		if fsiface.IsTransient(err) {
			sn.SetUseBlocked(r.now())
			return false, nil
		}
		return false, err
	}
	r.Committer.StageInsert(sn)
	return false, nil
}

// upsync starts (and waits out) a byte transfer from the local path to
// the cloud side, then records the landed fingerprint.
func (r *Reconciler) upsync(ctx context.Context, sn *tree.Node, fsn *fsiface.FsNode, cn *cloud.Node, parentPath string) (bool, error) {
	path := filepath.Join(parentPath, sn.Localname)
	target := cn
	if target == nil {
		target = &cloud.Node{Handle: sn.SyncedCloudHandle, DisplayName: sn.Localname}
	}

	if _, err := r.Transport.StartTransfer(ctx, path, target, noopCommitter{}); err != nil {
		if fsiface.IsTransient(err) {
			sn.SetUseBlocked(r.now())
			return false, nil
		}
		return false, err
	}

	rc, err := r.FS.Read(ctx, path)
	if err != nil {
		if fsiface.IsTransient(err) {
			sn.SetUseBlocked(r.now())
			return false, nil
		}
		return false, err
	}
	defer rc.Close()

	job := transfer.Job{Path: path, Direction: transfer.DirUpload, Size: fsn.Size}
	select {
	case err := <-r.Transfer.Upload(ctx, job, rc, r.Reporter):
		if err != nil {
			return false, err
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}

	fp := fingerprintFromFs(*fsn)
	sn.Fingerprint = fp
	sn.SetFsid(fsn.Fsid)
	if target.Handle.IsDefined() {
		sn.SetSyncedCloudHandle(target.Handle)
	}
	r.Committer.StageInsert(sn)
	return true, nil
}

// downsync starts (and waits out) a byte transfer from the cloud side
// to the local path, then records the landed fingerprint.
func (r *Reconciler) downsync(ctx context.Context, sn *tree.Node, cn *cloud.Node, parentPath string) (bool, error) {
	path := filepath.Join(parentPath, sn.Localname)

	wc, err := r.FS.Write(ctx, path)
	if err != nil {
		if fsiface.IsTransient(err) {
			sn.SetUseBlocked(r.now())
			return false, nil
		}
		return false, err
	}
	defer wc.Close()

	job := transfer.Job{Path: path, Direction: transfer.DirDownload, Size: cn.Fingerprint.Size}
	select {
	case err := <-r.Transfer.Download(ctx, job, wc, r.Reporter):
		if err != nil {
			return false, err
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}

	sn.Fingerprint = cn.Fingerprint
	sn.SetSyncedCloudHandle(cn.Handle)
	fsid, ferr := r.fsidOf(ctx, path)
	if ferr == nil {
		sn.SetFsid(fsid)
	}
	r.Committer.StageInsert(sn)
	return true, nil
}

func (r *Reconciler) fsidOf(ctx context.Context, path string) (domain.FSID, error) {
	h, err := r.FS.Open(ctx, path, false)
	if err != nil {
		return domain.UndefFSID, err
	}
	defer h.Close()
	st, err := r.FS.StatHandle(ctx, h)
	if err != nil {
		return domain.UndefFSID, err
	}
	return st.Fsid, nil
}

// deleteLocal moves a locally-deleted-on-cloud file or folder into the
// per-sync debris quarantine and drops its SyncNode.
func (r *Reconciler) deleteLocal(ctx context.Context, sn *tree.Node, parent *tree.Node, parentPath string) (bool, error) {
	root := rootPath(parent)
	debrisDir, err := debris.Ensure(root, r.now())
	if err != nil {
		return false, err
	}
	src := filepath.Join(parentPath, sn.Localname)
	dst := filepath.Join(debrisDir, sn.Localname)
	result, err := r.FS.Rename(ctx, src, dst)
	if err != nil {
		if fsiface.IsTransient(err) {
			sn.SetUseBlocked(r.now())
			return false, nil
		}
		return false, err
	}
	if !result.OK {
		if result.Transient {
			sn.SetUseBlocked(r.now())
		}
		return false, nil
	}
	if sn.DbID != 0 {
		r.Committer.StageDelete(sn.DbID)
	}
	sn.Remove()
	return true, nil
}

// deleteCloud moves a cloud node that vanished from the local side into
// cloud debris and drops its SyncNode.
func (r *Reconciler) deleteCloud(ctx context.Context, sn *tree.Node, cn *cloud.Node) (bool, error) {
	if _, err := r.Transport.MoveToSyncDebris(ctx, cn, false); err != nil {
		if Classify(err) == ErrorKindTransient {
			sn.SetUseBlocked(r.now())
			return false, nil
		}
		return false, err
	}
	if sn.DbID != 0 {
		r.Committer.StageDelete(sn.DbID)
	}
	sn.Remove()
	return true, nil
}

func rootPath(n *tree.Node) string {
	cur := n
	for cur.Parent() != nil {
		cur = cur.Parent()
	}
	return cur.Path()
}

// noopCommitter satisfies cloud.TransferCommitter for the synchronous
// upload path above, which already commits the landed fingerprint onto
// the SyncNode itself once Transfer.Upload's channel reports success.
type noopCommitter struct{}

func (noopCommitter) Commit(ctx context.Context, node *cloud.Node, fp domain.Fingerprint) error {
	return nil
}
