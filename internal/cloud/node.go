// Package cloud defines the reconciler's view of the remote tree and the
// narrow transport interface it drives. The transport's wire protocol
// (HTTP, protobuf, etc.) is out of scope here; this package only
// expresses the contract the reconciler and move detector need.
package cloud

import (
	"github.com/syncrules/cloudsync/internal/domain"
)

// Node is a view of one remote tree entry.
type Node struct {
	Handle       domain.CloudHandle
	ParentHandle domain.CloudHandle
	Type         domain.FileType
	DisplayName  string

	// Fingerprint is meaningful for files only.
	Fingerprint domain.Fingerprint

	Children []*Node

	// PendingChanges is the outstanding mutating commands for this
	// node; a row with a non-empty queue is skipped until drained.
	PendingChanges []PendingChange
}

func (n *Node) IsDir() bool {
	return n.Type == domain.FileTypeDirectory
}

func (n *Node) HasPendingChanges() bool {
	return len(n.PendingChanges) > 0
}

// PendingChange is an in-flight cloud mutation blocking further
// mutations on its node until the matching action packet arrives.
type PendingChange struct {
	ReqTag int64
	Kind   ChangeKind
}

type ChangeKind int

const (
	ChangeSetAttr ChangeKind = iota
	ChangeRename
	ChangePutFolder
	ChangeMoveToDebris
	ChangeStartTransfer
)
