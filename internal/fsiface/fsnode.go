package fsiface

import (
	"time"

	"github.com/syncrules/cloudsync/internal/domain"
)

// FsNode is an ephemeral snapshot of one filesystem entry, produced by a
// directory scan. It is never persisted directly — the reconciler folds
// it into a tree.SyncNode.
type FsNode struct {
	// Localname is the on-disk name of this entry within its parent
	// directory (case-sensitive, single path component).
	Localname string

	// Shortname is an optional legacy secondary name (e.g. Windows
	// 8.3 names). Empty when the filesystem has none or it is
	// identical to Localname.
	Shortname string

	Type domain.FileType

	Size int64

	ModTime time.Time

	// Fsid is UndefFSID when the filesystem does not expose stable
	// ids or the entry could not be opened.
	Fsid domain.FSID

	IsSymlink bool

	// IsBlocked marks a transient open failure (locked file, sharing
	// violation, permission hiccup) distinct from a permanent one.
	// Set when an entry's type could not be determined, e.g. a
	// directory entry that failed to open during a scan.
	IsBlocked bool

	// Fingerprint is valid for regular files only; reused from a
	// prior scan when possible.
	Fingerprint domain.Fingerprint
}

func (n FsNode) IsDir() bool {
	return n.Type == domain.FileTypeDirectory
}

func (n FsNode) IsFile() bool {
	return n.Type == domain.FileTypeRegular
}

// MatchesKnown reports whether this node is stable relative to a
// previously observed node with the same name: same type, fsid, mtime
// and size. Used by the scan worker to decide fingerprint reuse without
// rehashing a file that has not changed.
func (n FsNode) MatchesKnown(prior FsNode) bool {
	return n.Localname == prior.Localname &&
		n.Type == prior.Type &&
		n.Fsid == prior.Fsid &&
		n.ModTime.Equal(prior.ModTime) &&
		n.Size == prior.Size
}
