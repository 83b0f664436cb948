package reconcile

import (
	"testing"
	"time"

	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/tree"
	"github.com/syncrules/cloudsync/internal/triplet"
)

func TestDefaultPolicyResolveWinnerNewestMtimeWins(t *testing.T) {
	p := DefaultPolicy{}
	now := time.Now()

	local := domain.Fingerprint{ModTime: now, Size: 10}
	cloud := domain.Fingerprint{ModTime: now.Add(-time.Hour), Size: 10}
	if got := p.ResolveWinner(local, cloud); got != WinnerLocal {
		t.Fatalf("expected WinnerLocal for newer local mtime, got %v", got)
	}

	local2 := domain.Fingerprint{ModTime: now.Add(-time.Hour), Size: 10}
	cloud2 := domain.Fingerprint{ModTime: now, Size: 10}
	if got := p.ResolveWinner(local2, cloud2); got != WinnerCloud {
		t.Fatalf("expected WinnerCloud for newer cloud mtime, got %v", got)
	}
}

func TestDefaultPolicyResolveWinnerTiesGoToCloud(t *testing.T) {
	p := DefaultPolicy{}
	now := time.Now()
	fp := domain.Fingerprint{ModTime: now, Size: 10}
	if got := p.ResolveWinner(fp, fp); got != WinnerCloud {
		t.Fatalf("expected a tied mtime to resolve to WinnerCloud, got %v", got)
	}
}

func TestDefaultPolicyResolveDivergenceFlagsConflict(t *testing.T) {
	p := DefaultPolicy{}
	sess := tree.NewSession("/sync")
	sn := sess.Root.NewChild("a.txt", "")

	row := &triplet.Row{SyncNode: sn}
	progressed := p.ResolveDivergence(row)
	if progressed {
		t.Fatalf("ResolveDivergence should report no progress; a human must resolve")
	}
	if sn.Flags.Conflicts < tree.ActionHere {
		t.Fatalf("expected Conflicts to be raised to at least ActionHere, got %v", sn.Flags.Conflicts)
	}
}

func TestDefaultPolicyResolveDivergenceNeverLowersConflicts(t *testing.T) {
	p := DefaultPolicy{}
	sess := tree.NewSession("/sync")
	sn := sess.Root.NewChild("a.txt", "")
	sn.Flags.Conflicts = tree.ActionSubtree

	row := &triplet.Row{SyncNode: sn}
	p.ResolveDivergence(row)
	if sn.Flags.Conflicts != tree.ActionSubtree {
		t.Fatalf("expected Conflicts to stay at ActionSubtree, got %v", sn.Flags.Conflicts)
	}
}
