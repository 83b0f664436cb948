package fsiface

import (
	"context"
	"io"
	"time"

	"github.com/syncrules/cloudsync/internal/domain"
)

// Handle is an open filesystem handle, opaque to callers above this
// package.
type Handle interface {
	Close() error
}

// Stat is the metadata the FS abstraction reports for a single entry.
type Stat struct {
	Type        domain.FileType
	Size        int64
	ModTime     time.Time
	Fsid        domain.FSID
	FsidStable  bool
	IsSymlink   bool
	Shortname   string
}

// RenameResult reports the outcome of an atomic rename attempt.
type RenameResult struct {
	OK        bool
	Transient bool
}

// EventType classifies a filesystem notification.
type EventType int

const (
	EventChanged EventType = iota
	EventCreated
	EventRemoved
)

// Event is a single filesystem notification, as delivered by a
// platform-specific watcher thread and drained by the reconciler.
type Event struct {
	// RelPath is relative to the watch root.
	RelPath string
	Type    EventType
	At      time.Time
}

// FS is the filesystem abstraction consumed by the reconciler and move
// detector. It is deliberately narrow: enumeration, single-entry stat,
// atomic rename, directory creation, shortnames, fingerprinting,
// notifications, debris/volume identity queries. A real backend handles
// platform differences (symlinks, case sensitivity, ids) behind this
// interface; localfs.FS is the reference implementation.
type FS interface {
	// Open opens path for stat/fingerprint purposes. follow controls
	// symlink traversal.
	Open(ctx context.Context, path string, follow bool) (Handle, error)

	// Enumerate lists the immediate children of an open directory
	// handle.
	Enumerate(ctx context.Context, dir Handle) ([]FsNode, error)

	// StatHandle returns metadata for an open handle.
	StatHandle(ctx context.Context, h Handle) (Stat, error)

	// Rename atomically moves/renames src to dst. A transient result
	// should be retried later (e.g. sharing violation); non-transient
	// failures are permanent for this attempt.
	Rename(ctx context.Context, src, dst string) (RenameResult, error)

	Mkdir(ctx context.Context, path string) error

	// Shortname returns the legacy secondary name for path, or "" if
	// the filesystem has none.
	Shortname(ctx context.Context, path string) (string, error)

	// Fingerprint computes (size, mtime, CRC) for a regular file
	// handle.
	Fingerprint(ctx context.Context, h Handle) (domain.Fingerprint, error)

	// Notifications returns a channel of filesystem change events
	// for the watched root. Closed when the watch is torn down.
	Notifications() <-chan Event

	// PathsContainsDebris reports whether path lies within the
	// per-sync debris folder, so the scan worker can skip it.
	PathsContainsDebris(path string) bool

	// VolumeFingerprint identifies the volume a path lives on, used
	// by the move detector to reject cross-volume fsid matches.
	VolumeFingerprint(path string) (uint64, error)

	// DriveLetter returns the drive letter for path on platforms
	// that have one, or "" otherwise.
	DriveLetter(path string) string

	// Read opens path for streaming content out, for the transfer
	// subsystem's upload side.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or truncates path for streaming content in, for
	// the transfer subsystem's download side. Implementations should
	// write through a temp file and rename into place on Close so a
	// failed transfer never leaves a partial file at path.
	Write(ctx context.Context, path string) (io.WriteCloser, error)
}

// IsTransient classifies an error returned by FS operations as
// transient (worth retrying after backoff) vs permanent.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case err == domain.ErrTimeout, err == domain.ErrNetworkError:
		return true
	default:
		return false
	}
}
