package reconcile

import (
	"errors"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/fsiface"
)

// ErrUserInterventionRequired marks a row whose three views have
// diverged in a way no policy can resolve automatically; Classify maps
// it to ErrorKindUserIntervention. The reconciler itself does not
// return it: a three-way divergence or a type-mismatched bind goes to
// ConflictPolicy.ResolveDivergence, which flags the node's Conflicts
// state, and the row is reported unsynced without failing the pass.
var ErrUserInterventionRequired = errors.New("reconcile: user intervention required")

// ErrStateCacheUnusable is the fatal error kind: the per-sync state
// cache could not be opened or a write to it failed outright. Callers
// should fail the whole session rather than retry row by row.
var ErrStateCacheUnusable = errors.New("reconcile: state cache unusable")

// ErrDeferFlushMadeNoProgress is returned by Committer.Flush when every
// remaining queued insert is still waiting on a parent that itself
// never got written, which can only happen if a node's parent chain
// was never staged at all — a caller bug, not a transient condition.
var ErrDeferFlushMadeNoProgress = errors.New("reconcile: commit queue deadlocked on missing parent rows")

// ErrorKind classifies an error surfaced by a filesystem or cloud
// operation so syncItem knows whether to back off and retry, flag
// user intervention, or fail the session outright.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindTransient
	ErrorKindPermissionDenied
	ErrorKindUserIntervention
	ErrorKindFatal
	ErrorKindPermanent
)

// Classify maps an error returned by the filesystem or cloud transport
// to the retry/escalate behaviour syncItem should take.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrStateCacheUnusable):
		return ErrorKindFatal
	case errors.Is(err, ErrUserInterventionRequired):
		return ErrorKindUserIntervention
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, cloud.ErrAccessDenied):
		return ErrorKindPermissionDenied
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrNetworkError), fsiface.IsTransient(err):
		return ErrorKindTransient
	default:
		return ErrorKindPermanent
	}
}
