// Package scan implements the off-thread directory scan worker pool.
// Workers never touch the Sync Tree; they only produce
// []fsiface.FsNode for a Request, which the reconciler reads back after
// Completed() observes true.
package scan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/logger"
)

// Request is one outstanding (or finished) directory scan. The
// generation field lets a caller detect a stale result after the
// request it issued has been superseded or abandoned — the Go
// analogue of the original's weak completion cookie, since a GC'd
// language needs no explicit weak reference to let an abandoned
// request be collected.
type Request struct {
	target     string
	path       string
	known      map[string]fsiface.FsNode
	generation uint64

	done    chan struct{}
	once    sync.Once
	results []fsiface.FsNode
	err     error
}

// Completed reports whether the worker pool has finished this request.
func (r *Request) Completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the request completes or ctx is done.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Matches reports whether this request was issued for the given target
// path, so the reconciler can recognise an outstanding scan as the one
// it's waiting on for a particular node.
func (r *Request) Matches(target string) bool { return r.target == target }

// Results returns the scanned children. Only valid once Completed()
// is true.
func (r *Request) Results() ([]fsiface.FsNode, error) { return r.results, r.err }

// Generation returns the request's generation counter, used by callers
// to detect a stale late-arriving result.
func (r *Request) Generation() uint64 { return r.generation }

func (r *Request) complete(results []fsiface.FsNode, err error) {
	r.once.Do(func() {
		r.results = results
		r.err = err
		close(r.done)
	})
}

// Pool is the process-wide shared scan worker pool, refcounted so
// multiple SyncSessions can share one set of worker goroutines. Callers
// acquire it with Acquire and release it with Release; the pool's
// goroutines and job channel are only torn down once the refcount drops
// to zero.
type Pool struct {
	jobs    chan *job
	wg      sync.WaitGroup
	closed  atomic.Bool
	closeMu sync.Mutex

	refs int
	mu   sync.Mutex

	gen atomic.Uint64
}

type job struct {
	req *Request
	fs  fsiface.FS
}

var (
	sharedMu   sync.Mutex
	sharedPool *Pool
)

// Acquire returns the process-wide pool, starting it with n workers the
// first time it's needed. Every Acquire must be paired with a Release.
func Acquire(n int) *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool == nil {
		sharedPool = newPool(n)
	}
	sharedPool.mu.Lock()
	sharedPool.refs++
	sharedPool.mu.Unlock()
	return sharedPool
}

// Release decrements the pool's refcount, stopping its workers and
// clearing the process-wide singleton once the last holder releases it.
func (p *Pool) Release() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	p.mu.Lock()
	p.refs--
	remaining := p.refs
	p.mu.Unlock()
	if remaining <= 0 {
		p.stop()
		if sharedPool == p {
			sharedPool = nil
		}
	}
}

func newPool(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{jobs: make(chan *job, 256)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

// New creates a standalone pool not shared via Acquire/Release, useful
// for tests that want an isolated lifetime.
func New(n int) *Pool { return newPool(n) }

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		if j.req == nil {
			// Sentinel empty request signalling termination.
			return
		}
		results, err := scanOne(context.Background(), j.fs, j.req.target, j.req.known)
		j.req.complete(results, err)
	}
}

// stop closes the job channel and waits: each worker finishes the jobs
// still queued and exits when its range over the channel ends.
func (p *Pool) stop() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
}

// Scan enqueues a directory scan of target on behalf of path (the
// SyncNode path this scan will update), reusing known's fingerprints
// where a child is observed stable. It is safe to call from the
// reconciler's own goroutine; it never blocks on the scan itself.
func (p *Pool) Scan(fs fsiface.FS, target, path string, known map[string]fsiface.FsNode) *Request {
	req := &Request{
		target:     target,
		path:       path,
		known:      known,
		generation: p.gen.Add(1),
		done:       make(chan struct{}),
	}
	select {
	case p.jobs <- &job{req: req, fs: fs}:
	default:
		// The FIFO is saturated; fall back to a blocking send in a
		// goroutine so Scan itself never blocks the reconciler.
		go func() { p.jobs <- &job{req: req, fs: fs} }()
	}
	return req
}

// scanOne performs the actual enumeration: open, skip missing/non-
// directory/debris targets, enumerate children, reuse fingerprints for
// stable entries, and classify open failures as blocked vs unknown.
func scanOne(ctx context.Context, fs fsiface.FS, target string, known map[string]fsiface.FsNode) ([]fsiface.FsNode, error) {
	if fs.PathsContainsDebris(target) {
		return nil, nil
	}

	h, err := fs.Open(ctx, target, false)
	if err != nil {
		if fsiface.IsTransient(err) {
			logger.Get().Debug("scan: transient open failure", "target", target, "err", err)
			return nil, err
		}
		// Missing or otherwise permanently unopenable: an empty
		// result, not an error, so the reconciler treats this as
		// "no children" rather than retrying forever.
		return nil, nil
	}
	defer h.Close()

	children, err := fs.Enumerate(ctx, h)
	if err != nil {
		return nil, err
	}

	out := make([]fsiface.FsNode, 0, len(children))
	for _, c := range children {
		if prior, ok := known[c.Localname]; ok && c.MatchesKnown(prior) {
			c.Fingerprint = prior.Fingerprint
		}
		out = append(out, c)
	}
	return out, nil
}
