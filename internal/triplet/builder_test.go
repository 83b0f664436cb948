package triplet

import (
	"testing"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/tree"
)

func TestBuildPairsByNameAcrossAllThreeViews(t *testing.T) {
	sess := tree.NewSession("/root")
	sess.Root.NewChild("a.txt", "")

	fsChildren := []fsiface.FsNode{
		{Localname: "a.txt", Type: domain.FileTypeRegular},
		{Localname: "b.txt", Type: domain.FileTypeRegular},
	}
	cloudParent := &cloud.Node{
		Children: []*cloud.Node{
			{Handle: "H1", DisplayName: "a.txt", Type: domain.FileTypeRegular},
		},
	}

	rows := Build(cloudParent, sess.Root, fsChildren, CaseSensitive)

	var gotA, gotB bool
	for _, r := range rows {
		switch {
		case r.SyncNode != nil && r.SyncNode.Localname == "a.txt":
			gotA = true
			if r.FsNode == nil || r.CloudNode == nil {
				t.Fatalf("row a.txt should have all three views: %+v", r)
			}
		case r.FsNode != nil && r.FsNode.Localname == "b.txt":
			gotB = true
			if r.SyncNode != nil || r.CloudNode != nil {
				t.Fatalf("row b.txt should be fs-only: %+v", r)
			}
		}
	}
	if !gotA || !gotB {
		t.Fatalf("missing expected rows: gotA=%v gotB=%v, rows=%+v", gotA, gotB, rows)
	}
}

func TestBuildRecordsFsClashesExceptFsidMatch(t *testing.T) {
	sess := tree.NewSession("/root")
	sync := sess.Root.NewChild("dup", "")
	sync.SetFsid(domain.FSID(5))

	fsChildren := []fsiface.FsNode{
		{Localname: "dup", Fsid: 5},
		{Localname: "dup", Fsid: 99},
	}
	rows := Build(nil, sess.Root, fsChildren, CaseSensitive)

	var found bool
	for _, r := range rows {
		if r.SyncNode != nil && r.SyncNode.Localname == "dup" {
			found = true
			if r.FsNode == nil || r.FsNode.Fsid != domain.FSID(5) {
				t.Fatalf("expected the fsid-5 collider chosen, got %+v", r.FsNode)
			}
			if len(r.FsClashes) != 1 || r.FsClashes[0].Fsid != domain.FSID(99) {
				t.Fatalf("expected the other collider recorded as a clash: %+v", r.FsClashes)
			}
		}
	}
	if !found {
		t.Fatalf("row for 'dup' not found")
	}
}

func TestBuildHandlesAmbiguousClashWithNoFsidMatch(t *testing.T) {
	sess := tree.NewSession("/root")
	sess.Root.NewChild("dup", "")

	fsChildren := []fsiface.FsNode{
		{Localname: "dup", Fsid: 1},
		{Localname: "dup", Fsid: 2},
	}
	rows := Build(nil, sess.Root, fsChildren, CaseSensitive)

	for _, r := range rows {
		if r.SyncNode != nil && r.SyncNode.Localname == "dup" {
			if r.FsNode != nil {
				t.Fatalf("ambiguous clash should leave FsNode nil, got %+v", r.FsNode)
			}
			if len(r.FsClashes) != 2 {
				t.Fatalf("expected both colliders recorded as clashes, got %d", len(r.FsClashes))
			}
		}
	}
}

func TestBuildCaseInsensitivePairingForCloudNames(t *testing.T) {
	sess := tree.NewSession("/root")
	fsChildren := []fsiface.FsNode{
		{Localname: "Report.TXT", Type: domain.FileTypeRegular},
	}
	cloudParent := &cloud.Node{
		Children: []*cloud.Node{
			{Handle: "H1", DisplayName: "report.txt", Type: domain.FileTypeRegular},
		},
	}

	rows := Build(cloudParent, sess.Root, fsChildren, CaseInsensitiveASCII)

	found := false
	for _, r := range rows {
		if r.FsNode != nil && r.FsNode.Localname == "Report.TXT" {
			found = true
			if r.CloudNode == nil {
				t.Fatalf("expected case-insensitive match with cloud node")
			}
		}
	}
	if !found {
		t.Fatalf("row for Report.TXT not found")
	}
}

func TestBuildIsStableUnderReorderedInputs(t *testing.T) {
	sess := tree.NewSession("/root")
	fsChildren1 := []fsiface.FsNode{
		{Localname: "a.txt"}, {Localname: "b.txt"}, {Localname: "c.txt"},
	}
	fsChildren2 := []fsiface.FsNode{
		{Localname: "c.txt"}, {Localname: "a.txt"}, {Localname: "b.txt"},
	}

	rows1 := Build(nil, sess.Root, fsChildren1, CaseSensitive)
	rows2 := Build(nil, sess.Root, fsChildren2, CaseSensitive)

	if len(rows1) != len(rows2) {
		t.Fatalf("row counts differ: %d vs %d", len(rows1), len(rows2))
	}
	for i := range rows1 {
		if rowLocalName(rows1[i]) != rowLocalName(rows2[i]) {
			t.Fatalf("row %d differs: %s vs %s", i, rowLocalName(rows1[i]), rowLocalName(rows2[i]))
		}
	}
}
