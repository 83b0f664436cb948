package domain

// SyncMode defines how synchronization should occur
type SyncMode string

const (
	// SyncModeOneWayPush syncs from source to target only
	SyncModeOneWayPush SyncMode = "one-way-push"

	// SyncModeOneWayPull syncs from target to source only
	SyncModeOneWayPull SyncMode = "one-way-pull"

	// SyncModeTwoWay performs bidirectional sync
	SyncModeTwoWay SyncMode = "two-way"
)

// IsValid checks if the sync mode is a known value
func (m SyncMode) IsValid() bool {
	switch m {
	case SyncModeOneWayPush, SyncModeOneWayPull, SyncModeTwoWay:
		return true
	}
	return false
}

// ConflictStrategy defines how to resolve sync conflicts
type ConflictStrategy string

const (
	// ConflictKeepLocal always keeps the local version
	ConflictKeepLocal ConflictStrategy = "keep_local"

	// ConflictKeepRemote always keeps the remote version
	ConflictKeepRemote ConflictStrategy = "keep_remote"

	// ConflictKeepNewest keeps the version with newer mtime
	ConflictKeepNewest ConflictStrategy = "keep_newest"

	// ConflictManual requires user intervention
	ConflictManual ConflictStrategy = "manual"
)

// IsValid checks if the conflict strategy is a known value
func (s ConflictStrategy) IsValid() bool {
	switch s {
	case ConflictKeepLocal, ConflictKeepRemote, ConflictKeepNewest, ConflictManual:
		return true
	}
	return false
}

