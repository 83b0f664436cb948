package movedetect

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/tree"
	"github.com/syncrules/cloudsync/internal/triplet"
)

type fakeHandle struct{}

func (fakeHandle) Close() error { return nil }

type fakeFS struct {
	openErr    map[string]error
	renameOK   bool
	renameCalls []string
}

func (f *fakeFS) Open(ctx context.Context, path string, follow bool) (fsiface.Handle, error) {
	if err, ok := f.openErr[path]; ok {
		return nil, err
	}
	return fakeHandle{}, nil
}
func (f *fakeFS) Enumerate(ctx context.Context, dir fsiface.Handle) ([]fsiface.FsNode, error) {
	return nil, nil
}
func (f *fakeFS) StatHandle(ctx context.Context, h fsiface.Handle) (fsiface.Stat, error) {
	return fsiface.Stat{}, nil
}
func (f *fakeFS) Rename(ctx context.Context, src, dst string) (fsiface.RenameResult, error) {
	f.renameCalls = append(f.renameCalls, src+"->"+dst)
	return fsiface.RenameResult{OK: f.renameOK}, nil
}
func (f *fakeFS) Mkdir(ctx context.Context, path string) error               { return nil }
func (f *fakeFS) Shortname(ctx context.Context, path string) (string, error) { return "", nil }
func (f *fakeFS) Fingerprint(ctx context.Context, h fsiface.Handle) (domain.Fingerprint, error) {
	return domain.Fingerprint{}, nil
}
func (f *fakeFS) Notifications() <-chan fsiface.Event           { return nil }
func (f *fakeFS) PathsContainsDebris(path string) bool           { return false }
func (f *fakeFS) VolumeFingerprint(path string) (uint64, error) { return 1, nil }
func (f *fakeFS) DriveLetter(path string) string                 { return "" }
func (f *fakeFS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(io.LimitReader(nil, 0)), nil
}
func (f *fakeFS) Write(ctx context.Context, path string) (io.WriteCloser, error) {
	return nopWriteCloser{}, nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                 { return nil }

type fakeTransport struct {
	renamed []string
	tags    int64
}

func (t *fakeTransport) SetAttr(ctx context.Context, node *cloud.Node, attrs cloud.Attrs) (cloud.PendingChange, error) {
	return cloud.PendingChange{}, nil
}
func (t *fakeTransport) Rename(ctx context.Context, node *cloud.Node, newParent domain.CloudHandle, delMode cloud.DeleteMode, ovHandle domain.CloudHandle, newName string) (cloud.PendingChange, error) {
	t.renamed = append(t.renamed, string(node.Handle)+"->"+string(newParent)+"/"+newName)
	return cloud.PendingChange{}, nil
}
func (t *fakeTransport) PutFolder(ctx context.Context, parent domain.CloudHandle, newNode *cloud.Node) (cloud.PendingChange, error) {
	return cloud.PendingChange{}, nil
}
func (t *fakeTransport) MoveToSyncDebris(ctx context.Context, node *cloud.Node, isInShare bool) (cloud.PendingChange, error) {
	return cloud.PendingChange{}, nil
}
func (t *fakeTransport) StartTransfer(ctx context.Context, localPath string, target *cloud.Node, committer cloud.TransferCommitter) (cloud.PendingChange, error) {
	return cloud.PendingChange{}, nil
}
func (t *fakeTransport) NextReqTag() int64 {
	t.tags++
	return t.tags
}
func (t *fakeTransport) OnActionPacket(func(cloud.ActionPacket)) {}

func TestDetectLocalRenameSameFolder(t *testing.T) {
	sess := tree.NewSession("/sync")
	folder := sess.Root
	mtime := time.Now().Add(-time.Hour)

	src := folder.NewChild("a.txt", "")
	src.SetFsid(domain.FSID(7))
	src.Type = domain.FileTypeRegular
	src.Fingerprint = domain.Fingerprint{ModTime: mtime, Size: 10}
	src.SetSyncedCloudHandle(domain.CloudHandle("H1"))

	cloudNode := &cloud.Node{Handle: "H1", ParentHandle: "ROOT", DisplayName: "a.txt", Type: domain.FileTypeRegular}

	fs := &fakeFS{}
	transport := &fakeTransport{}
	d := New(fs, transport, func(h domain.CloudHandle) *cloud.Node {
		if h == "H1" {
			return cloudNode
		}
		return nil
	})
	d.Now = func() time.Time { return mtime.Add(time.Hour) }

	row := &triplet.Row{
		FsNode: &fsiface.FsNode{Localname: "b.txt", Type: domain.FileTypeRegular, Fsid: 7, ModTime: mtime, Size: 10},
	}
	destCloudParent := &cloud.Node{Handle: "ROOT"}

	acted, err := d.DetectLocal(context.Background(), row, sess, folder, destCloudParent)
	if err != nil {
		t.Fatalf("DetectLocal err: %v", err)
	}
	if !acted {
		t.Fatalf("expected DetectLocal to act on a same-folder rename")
	}
	if len(transport.renamed) != 1 {
		t.Fatalf("expected exactly one rename command, got %v", transport.renamed)
	}
	if folder.Child("b.txt") != src {
		t.Fatalf("src should now be reachable as b.txt")
	}
}

func TestDetectLocalRejectsSymlink(t *testing.T) {
	sess := tree.NewSession("/sync")
	folder := sess.Root
	fs := &fakeFS{}
	d := New(fs, &fakeTransport{}, func(domain.CloudHandle) *cloud.Node { return nil })

	row := &triplet.Row{FsNode: &fsiface.FsNode{Localname: "link", IsSymlink: true}}
	acted, err := d.DetectLocal(context.Background(), row, sess, folder, nil)
	if err != nil || acted {
		t.Fatalf("symlink should never be treated as a move: acted=%v err=%v", acted, err)
	}
	if folder.Flags.ScanBlocked == tree.Resolved {
		t.Fatalf("expected folder to be marked scan-blocked")
	}
}

func TestDetectLocalClearsFsidOnInodeReuse(t *testing.T) {
	sess := tree.NewSession("/sync")
	folder := sess.Root
	other := folder.NewChild("other", "")
	other.SetFsid(domain.FSID(7))
	other.Type = domain.FileTypeRegular
	other.Fingerprint = domain.Fingerprint{ModTime: time.Now().Add(-24 * time.Hour), Size: 999}

	fs := &fakeFS{}
	d := New(fs, &fakeTransport{}, func(domain.CloudHandle) *cloud.Node { return nil })

	row := &triplet.Row{FsNode: &fsiface.FsNode{Localname: "new.txt", Type: domain.FileTypeRegular, Fsid: 7, ModTime: time.Now(), Size: 5}}
	acted, err := d.DetectLocal(context.Background(), row, sess, folder, nil)
	if err != nil || acted {
		t.Fatalf("mismatched mtime/size should not be treated as a move")
	}
	if row.FsNode.Fsid != domain.UndefFSID {
		t.Fatalf("expected fsid to be cleared after rejecting the inode match")
	}
}

func TestDetectCloudMovesAcrossFolders(t *testing.T) {
	sess := tree.NewSession("/sync")
	f1 := sess.Root.NewChild("F1", "")
	f2 := sess.Root.NewChild("F2", "")
	x := f1.NewChild("x", "")
	x.SetSyncedCloudHandle(domain.CloudHandle("H9"))
	x.Type = domain.FileTypeRegular

	fs := &fakeFS{renameOK: true}
	d := New(fs, &fakeTransport{}, func(domain.CloudHandle) *cloud.Node { return nil })

	row := &triplet.Row{CloudNode: &cloud.Node{Handle: "H9", DisplayName: "x", Type: domain.FileTypeRegular}}
	acted, err := d.DetectCloud(context.Background(), row, sess, f2)
	if err != nil {
		t.Fatalf("DetectCloud err: %v", err)
	}
	if !acted {
		t.Fatalf("expected DetectCloud to act on the cross-folder move")
	}
	if len(fs.renameCalls) != 1 {
		t.Fatalf("expected exactly one fs rename call, got %v", fs.renameCalls)
	}
	if f1.Flags.ScanAgain == tree.Resolved || f2.Flags.ScanAgain == tree.Resolved {
		t.Fatalf("both source and destination folders should be marked for scan")
	}
}
