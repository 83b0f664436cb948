package cloud

import (
	"context"
	"errors"

	"github.com/syncrules/cloudsync/internal/domain"
)

// ErrAccessDenied is returned by Rename when the caller lacks
// permission to perform the move on the remote side.
var ErrAccessDenied = errors.New("cloud: access denied")

// DeleteMode controls what happens to an overwritten destination during
// a rename-with-overwrite.
type DeleteMode int

const (
	// DeleteModeNone means no existing destination is expected.
	DeleteModeNone DeleteMode = iota
	// DeleteModeDebris moves the overwritten node to cloud debris.
	DeleteModeDebris
	// DeleteModePermanent deletes the overwritten node outright.
	DeleteModePermanent
)

// Attrs carries the mutable attributes settable via SetAttr.
type Attrs struct {
	DisplayName string
	Fingerprint *domain.Fingerprint
}

// ActionPacket is the asynchronous acknowledgement of a previously
// issued mutating command, correlated by ReqTag.
type ActionPacket struct {
	ReqTag  int64
	Node    *Node
	Err     error
}

// Transport is the narrow cloud-transport contract the reconciler
// drives. Commands are fire-and-forget: they return a PendingChange
// immediately and the mutation completes asynchronously via the
// callback registered with OnActionPacket.
type Transport interface {
	SetAttr(ctx context.Context, node *Node, attrs Attrs) (PendingChange, error)

	// Rename moves/renames node under newParent with newName. ovHandle
	// identifies an existing destination to resolve per delMode, or is
	// domain.UndefHandle when there is none. Returns ErrAccessDenied
	// when the caller lacks permission.
	Rename(ctx context.Context, node *Node, newParent domain.CloudHandle, delMode DeleteMode, ovHandle domain.CloudHandle, newName string) (PendingChange, error)

	PutFolder(ctx context.Context, parent domain.CloudHandle, newNode *Node) (PendingChange, error)

	MoveToSyncDebris(ctx context.Context, node *Node, isInShare bool) (PendingChange, error)

	// StartTransfer initiates an upload of the local file at localPath
	// to target. An implementation may move the bytes inside this
	// call: drivetransport's StartTransfer uploads the file and then
	// calls committer.Commit itself.
	StartTransfer(ctx context.Context, localPath string, target *Node, committer TransferCommitter) (PendingChange, error)

	// NextReqTag allocates a fresh correlation tag for a command about
	// to be issued.
	NextReqTag() int64

	// OnActionPacket registers the callback invoked when an
	// acknowledgement for a previously issued command arrives.
	OnActionPacket(func(ActionPacket))
}

// TransferCommitter is invoked once bytes for a started transfer have
// landed, so the cloud side can finalize metadata (drivetransport calls
// it from StartTransfer).
type TransferCommitter interface {
	Commit(ctx context.Context, node *Node, fp domain.Fingerprint) error
}
