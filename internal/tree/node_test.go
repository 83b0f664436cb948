package tree

import (
	"testing"
	"time"

	"github.com/syncrules/cloudsync/internal/domain"
)

func TestSetFutureScanPropagatesToRoot(t *testing.T) {
	sess := NewSession("/sync")
	folder := sess.Root.NewChild("a", "")
	leaf := folder.NewChild("b.txt", "")

	leaf.SetFutureScan(true, false)

	if leaf.Flags.ScanAgain != ActionHere {
		t.Fatalf("leaf ScanAgain = %v, want ActionHere", leaf.Flags.ScanAgain)
	}
	if folder.Flags.ScanAgain != DescendantFlagged {
		t.Fatalf("folder ScanAgain = %v, want DescendantFlagged", folder.Flags.ScanAgain)
	}
	if sess.Root.Flags.ScanAgain != DescendantFlagged {
		t.Fatalf("root ScanAgain = %v, want DescendantFlagged", sess.Root.Flags.ScanAgain)
	}
}

func TestSetFutureScanSubtreePropagatesDownOnlyViaExplicitWalk(t *testing.T) {
	sess := NewSession("/sync")
	folder := sess.Root.NewChild("a", "")
	folder.SetFutureScan(false, true)

	if folder.Flags.ScanAgain != ActionSubtree {
		t.Fatalf("folder ScanAgain = %v, want ActionSubtree", folder.Flags.ScanAgain)
	}

	// PropagateSubtreeFlag is the explicit downward-pass helper the
	// reconciler calls per child during its top-of-directory step;
	// it is not automatic.
	child := folder.NewChild("b.txt", "")
	got := PropagateSubtreeFlag(folder.Flags.ScanAgain, child.Flags.ScanAgain)
	if got != ActionSubtree {
		t.Fatalf("PropagateSubtreeFlag = %v, want ActionSubtree", got)
	}
}

func TestSetFsidMaintainsIndex(t *testing.T) {
	sess := NewSession("/sync")
	n := sess.Root.NewChild("f.txt", "")

	n.SetFsid(domain.FSID(42))
	got := sess.Indexes().LookupFsid(domain.FSID(42))
	if len(got) != 1 || got[0] != n {
		t.Fatalf("LookupFsid(42) = %v, want [n]", got)
	}

	n.SetFsid(domain.FSID(43))
	if got := sess.Indexes().LookupFsid(domain.FSID(42)); len(got) != 0 {
		t.Fatalf("old fsid index not cleared: %v", got)
	}
	if got := sess.Indexes().LookupFsid(domain.FSID(43)); len(got) != 1 {
		t.Fatalf("new fsid index missing: %v", got)
	}
}

func TestSetParentMovesChildAndPreservesHandle(t *testing.T) {
	sess := NewSession("/sync")
	src := sess.Root.NewChild("src", "")
	dst := sess.Root.NewChild("dst", "")
	f := src.NewChild("x.txt", "")
	f.SetSyncedCloudHandle(domain.CloudHandle("H1"))

	needsRename := f.SetParent(dst, "x.txt", "", true)
	if !needsRename {
		t.Fatalf("SetParent should request a cloud rename for a handled node")
	}
	if src.Child("x.txt") != nil {
		t.Fatalf("x.txt should be detached from src")
	}
	if dst.Child("x.txt") != f {
		t.Fatalf("x.txt should now be a child of dst")
	}
	if got := sess.Indexes().LookupHandle(domain.CloudHandle("H1")); len(got) != 1 || got[0] != f {
		t.Fatalf("cloud handle index should still point at f after move: %v", got)
	}
}

func TestBlockedBackoffArmsAfterDelay(t *testing.T) {
	sess := NewSession("/sync")
	n := sess.Root.NewChild("locked.txt", "")

	t0 := time.Now()
	n.SetUseBlocked(t0)
	if n.UseBlockedReady(t0) {
		t.Fatalf("should not be ready immediately after blocking")
	}
	if !n.UseBlockedReady(t0.Add(initialBackoff + time.Second)) {
		t.Fatalf("should be ready once the initial backoff has elapsed")
	}
	n.ClearUseBlocked()
	if !n.UseBlockedReady(t0) {
		t.Fatalf("clearing useBlocked should make it immediately ready")
	}
}

func TestUpdateTreestateFromChild(t *testing.T) {
	cases := []struct {
		parent, child, want TreeState
	}{
		{Resolved, Resolved, Resolved},
		{Resolved, ActionHere, DescendantFlagged},
		{DescendantFlagged, ActionHere, DescendantFlagged},
		{ActionSubtree, Resolved, ActionSubtree},
	}
	for _, c := range cases {
		if got := UpdateTreestateFromChild(c.parent, c.child); got != c.want {
			t.Errorf("UpdateTreestateFromChild(%v, %v) = %v, want %v", c.parent, c.child, got, c.want)
		}
	}
}
