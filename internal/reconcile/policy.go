package reconcile

import (
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/tree"
	"github.com/syncrules/cloudsync/internal/triplet"
)

// Winner names which side's content should overwrite the other when a
// row has no SyncNode yet but both a filesystem and a cloud entry
// exist, or when a three-way row has diverged on both sides at once.
type Winner int

const (
	WinnerNone Winner = iota
	WinnerLocal
	WinnerCloud
)

// ConflictPolicy isolates the two decisions RecursiveSync cannot make
// by itself: what to do with a row that has genuinely diverged on both
// sides, and which side wins when a bare bind (no prior SyncNode) finds
// different content on each side.
type ConflictPolicy interface {
	// ResolveDivergence is called when a three-way row's fs and cloud
	// fingerprints both differ from the recorded SyncNode fingerprint.
	// Implementations record whatever state they need (typically
	// raising row.SyncNode.Flags.Conflicts) and return false to tell
	// syncItem this row made no progress this pass.
	ResolveDivergence(row *triplet.Row) bool

	// ResolveWinner picks a side when a fresh row binds an existing
	// fs entry to an existing cloud entry with differing content.
	ResolveWinner(fs, cloud domain.Fingerprint) Winner
}

// DefaultPolicy implements the newest-mtime-wins rule with a cloud-side
// tiebreak, and flags (rather than auto-resolves) genuine three-way
// divergence for a human to sort out.
type DefaultPolicy struct{}

func (DefaultPolicy) ResolveDivergence(row *triplet.Row) bool {
	if row.SyncNode != nil && row.SyncNode.Flags.Conflicts < tree.ActionHere {
		row.SyncNode.Flags.Conflicts = tree.ActionHere
	}
	return false
}

func (DefaultPolicy) ResolveWinner(fs, cl domain.Fingerprint) Winner {
	if fs.ModTime.After(cl.ModTime) {
		return WinnerLocal
	}
	return WinnerCloud
}
