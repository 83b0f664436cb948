// Package transfer defines the byte-transfer subsystem consumed by the
// reconciler. Actually moving file bytes is a pluggable concern — this
// package only expresses the contract and a reference implementation
// that moves no real file content.
package transfer

import (
	"context"
	"io"

	"github.com/syncrules/cloudsync/internal/progress"
)

// Direction indicates which way bytes are moving.
type Direction int

const (
	DirUpload Direction = iota
	DirDownload
)

// Job describes one in-flight transfer.
type Job struct {
	SessionID string
	Path      string
	Direction Direction
	Size      int64
}

// Subsystem is the narrow transfer contract the reconciler drives.
// Transfers are asynchronous: Upload/Download enqueue work and return
// immediately; completion is observed via the done channel.
type Subsystem interface {
	// Upload reads from r and delivers it to the cloud side for path.
	// Returns a channel that receives exactly one error (nil on
	// success) when the transfer finishes.
	Upload(ctx context.Context, job Job, r io.Reader, reporter progress.Reporter) <-chan error

	// Download writes cloud content for path into w.
	Download(ctx context.Context, job Job, w io.Writer, reporter progress.Reporter) <-chan error

	// CancelAll cancels every in-flight transfer belonging to
	// sessionID.
	CancelAll(sessionID string)
}

// LocalCopySubsystem is a reference Subsystem that runs each transfer as
// a plain io.Copy with progress reporting. It has no remote side:
// Upload reads r to the end and discards the bytes, and Download writes
// job.Size zero bytes to w.
type LocalCopySubsystem struct{}

func NewLocalCopySubsystem() *LocalCopySubsystem {
	return &LocalCopySubsystem{}
}

func (s *LocalCopySubsystem) Upload(ctx context.Context, job Job, r io.Reader, reporter progress.Reporter) <-chan error {
	return s.copy(ctx, job, r, io.Discard, reporter)
}

func (s *LocalCopySubsystem) Download(ctx context.Context, job Job, w io.Writer, reporter progress.Reporter) <-chan error {
	return s.copy(ctx, job, io.LimitReader(zeroReader{}, job.Size), w, reporter)
}

func (s *LocalCopySubsystem) copy(ctx context.Context, job Job, r io.Reader, w io.Writer, reporter progress.Reporter) <-chan error {
	done := make(chan error, 1)
	go func() {
		if reporter == nil {
			reporter = progress.NullReporter{}
		}
		reporter.Start(job.Path, job.Size)
		pr := progress.NewProgressReader(r, reporter)

		var err error
		_, err = io.Copy(w, pr)
		if err == nil {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			default:
			}
		}
		if err != nil {
			reporter.Error(err)
		} else {
			reporter.Complete()
		}
		done <- err
	}()
	return done
}

// zeroReader yields an endless stream of zero bytes; combined with
// io.LimitReader it stands in for "cloud content" in the reference
// transfer subsystem, which has no real remote to read from.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// CancelAll is a no-op: the reference subsystem has no cancellation
// registry since jobs are short-lived goroutines bound to ctx.
func (s *LocalCopySubsystem) CancelAll(sessionID string) {}
