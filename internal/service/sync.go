package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/syncrules/cloudsync/internal/cloud"
	"github.com/syncrules/cloudsync/internal/config"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/drivetransport"
	"github.com/syncrules/cloudsync/internal/fsiface"
	"github.com/syncrules/cloudsync/internal/lock"
	"github.com/syncrules/cloudsync/internal/localfs"
	"github.com/syncrules/cloudsync/internal/logger"
	"github.com/syncrules/cloudsync/internal/movedetect"
	"github.com/syncrules/cloudsync/internal/progress"
	"github.com/syncrules/cloudsync/internal/reconcile"
	"github.com/syncrules/cloudsync/internal/scan"
	"github.com/syncrules/cloudsync/internal/statecache"
	"github.com/syncrules/cloudsync/internal/transfer"
	"github.com/syncrules/cloudsync/internal/tree"
	"github.com/syncrules/cloudsync/internal/triplet"
)

// Report summarises one reconciliation pass for a rule. The reconciler
// has no separate plan/execute split the way the older flat-diff
// engine did — it decides and acts on each row as it walks the tree —
// so this is what RunSync hands back instead of a SyncPlan.
type Report struct {
	RuleName  string
	Settled   bool
	Conflicts int
}

// driveCredentials is the on-disk shape of a gdrive transport's
// Credentials file, mirroring drivetransport's AuthConfig fields plus
// where to cache the OAuth token.
type driveCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenPath    string `json:"token_path"`
}

func loadDriveCredentials(path string) (driveCredentials, error) {
	var creds driveCredentials
	data, err := os.ReadFile(config.ExpandPath(path))
	if err != nil {
		return creds, fmt.Errorf("reading credentials file: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parsing credentials file: %w", err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return creds, fmt.Errorf("credentials file missing client_id/client_secret")
	}
	return creds, nil
}

// cloudTreeFetcher is satisfied by drivetransport.Transport. It is not
// part of the narrow cloud.Transport contract the reconciler itself
// depends on — cloud.Transport only ever mutates the handful of
// pending-change nodes the reconciler touches, never browses — so
// fetching a fresh cloud-side tree to seed a pass is kept as a separate
// capability, used only here at the driver layer.
type cloudTreeFetcher interface {
	FetchTree(ctx context.Context) (*cloud.Node, error)
}

// syncPair is the live engine wiring for one rule: the local/cloud
// collaborators, the persistent session they reconcile, and the
// reconciler driving it. Built once per rule and kept around across
// passes so the session's tree (and its state-cache-backed history)
// survives between runs.
type syncPair struct {
	rule       domain.SyncRule
	localRoot  string
	cloudRoot  string
	fs         fsiface.FS
	transport  cloud.Transport
	fetcher    cloudTreeFetcher
	store      *statecache.Store
	committer  *reconcile.Committer
	reconciler *reconcile.Reconciler
	session    *tree.SyncSession

	mu         sync.Mutex
	cloudIndex map[domain.CloudHandle]*cloud.Node
}

func (p *syncPair) lookupCloudNode(h domain.CloudHandle) *cloud.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cloudIndex[h]
}

func (p *syncPair) setCloudIndex(idx map[domain.CloudHandle]*cloud.Node) {
	p.mu.Lock()
	p.cloudIndex = idx
	p.mu.Unlock()
}

// indexCloudTree flattens a freshly fetched cloud tree into a
// handle->node lookup for the move detector, which only ever needs to
// resolve a single handle at a time, never browse.
func indexCloudTree(root *cloud.Node) map[domain.CloudHandle]*cloud.Node {
	idx := make(map[domain.CloudHandle]*cloud.Node)
	var walk func(n *cloud.Node)
	walk = func(n *cloud.Node) {
		if n == nil {
			return
		}
		idx[n.Handle] = n
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return idx
}

// SyncService orchestrates reconciliation passes for every configured
// rule, owning the cross-rule lock and scan pool the way the daemon
// expects a single long-lived collaborator to.
type SyncService struct {
	config *config.Config

	mu    sync.Mutex
	pairs map[string]*syncPair

	lock     *lock.FileLock
	reporter progress.Reporter
	pool     *scan.Pool
}

// NewSyncService creates a new sync service.
func NewSyncService(cfg *config.Config) (*SyncService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	fileLock, err := lock.NewFileLock(cfg.GetLockPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create file lock: %w", err)
	}

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}

	return &SyncService{
		config: cfg,
		pairs:  make(map[string]*syncPair),
		lock:   fileLock,
		pool:   scan.New(workers),
	}, nil
}

// AcquireLock acquires the sync lock for a specific rule
func (s *SyncService) AcquireLock(ruleName string) error {
	return s.lock.Acquire(ruleName)
}

// ReleaseLock releases the sync lock
func (s *SyncService) ReleaseLock() error {
	return s.lock.Release()
}

// IsLocked checks if another sync operation is in progress
func (s *SyncService) IsLocked() bool {
	return s.lock.IsLocked()
}

// GetLockHolder returns information about the current lock holder
func (s *SyncService) GetLockHolder() (*lock.LockInfo, error) {
	return s.lock.GetHolder()
}

// ForceUnlock forcibly releases the lock (use with caution)
func (s *SyncService) ForceUnlock() error {
	return s.lock.ForceRelease()
}

// SetProgressReporter sets the progress reporter for sync operations
func (s *SyncService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

func (s *SyncService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// getPair returns (building and rehydrating if necessary) the engine
// wiring for ruleName. A rule must name exactly one local endpoint and
// one gdrive endpoint; this engine has no local-to-local or
// gdrive-to-gdrive mode.
func (s *SyncService) getPair(ctx context.Context, ruleName string) (*syncPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pairs[ruleName]; ok {
		return p, nil
	}

	rule, err := s.config.GetRule(ruleName)
	if err != nil {
		return nil, err
	}

	source, err := s.config.GetEndpoint(rule.SourceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("source endpoint: %w", err)
	}
	target, err := s.config.GetEndpoint(rule.TargetEndpoint)
	if err != nil {
		return nil, fmt.Errorf("target endpoint: %w", err)
	}
	sourceTransport, err := s.config.GetTransport(source.Transport)
	if err != nil {
		return nil, fmt.Errorf("source transport: %w", err)
	}
	targetTransport, err := s.config.GetTransport(target.Transport)
	if err != nil {
		return nil, fmt.Errorf("target transport: %w", err)
	}

	var localEndpoint, cloudEndpoint *domain.Endpoint
	var cloudTransportCfg *domain.Transport
	var localIsSource bool
	switch {
	case sourceTransport.Type == domain.TransportLocal && targetTransport.Type == domain.TransportGDrive:
		localEndpoint, cloudEndpoint, cloudTransportCfg = source, target, targetTransport
		localIsSource = true
	case sourceTransport.Type == domain.TransportGDrive && targetTransport.Type == domain.TransportLocal:
		localEndpoint, cloudEndpoint, cloudTransportCfg = target, source, sourceTransport
		localIsSource = false
	default:
		return nil, fmt.Errorf("rule %s: reconciliation requires exactly one local and one gdrive endpoint", ruleName)
	}

	localRoot := config.ExpandPath(localEndpoint.Root)
	fs, err := localfs.New(localRoot)
	if err != nil {
		return nil, fmt.Errorf("rule %s: local endpoint %s: %w", ruleName, localEndpoint.Name, err)
	}

	creds, err := loadDriveCredentials(cloudTransportCfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("rule %s: gdrive transport %s: %w", ruleName, cloudTransportCfg.Name, err)
	}
	dt, err := drivetransport.New(ctx, creds.ClientID, creds.ClientSecret, creds.TokenPath, config.ExpandPath(cloudEndpoint.Root))
	if err != nil {
		return nil, fmt.Errorf("rule %s: gdrive endpoint %s: %w", ruleName, cloudEndpoint.Name, err)
	}

	dbPath := filepath.Join(s.config.GetDataDir(), "statecache.db")
	rootFsid, err := fs.VolumeFingerprint(localRoot)
	if err != nil {
		return nil, fmt.Errorf("rule %s: identifying local volume: %w", ruleName, err)
	}
	table := statecache.TableName(rootFsid, string(dt.RootHandle()), ruleName)
	store, err := statecache.Open(dbPath, table)
	if err != nil {
		return nil, fmt.Errorf("rule %s: opening state cache: %w", ruleName, err)
	}

	session, err := rehydrateOrCreate(ctx, store, localRoot)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("rule %s: rehydrating sync tree: %w", ruleName, err)
	}
	session.Root.SetSyncedCloudHandle(dt.RootHandle())

	pair := &syncPair{
		rule:      *rule,
		localRoot: localRoot,
		cloudRoot: config.ExpandPath(cloudEndpoint.Root),
		fs:        fs,
		transport: dt,
		fetcher:   dt,
		store:     store,
		session:   session,
	}

	committer := reconcile.NewCommitter(store)
	detector := movedetect.New(fs, dt, pair.lookupCloudNode)
	pair.committer = committer
	pair.reconciler = reconcile.New(fs, s.pool, dt, transfer.NewLocalCopySubsystem(), detector, committer)
	pair.reconciler.Mode = rule.Mode
	pair.reconciler.LocalIsSource = localIsSource

	s.pairs[ruleName] = pair
	return pair, nil
}

// rehydrateOrCreate loads a session's tree from the state cache if a
// prior pass left rows behind, or starts a fresh one otherwise.
func rehydrateOrCreate(ctx context.Context, store *statecache.Store, localRoot string) (*tree.SyncSession, error) {
	rows, err := store.Rewind(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loaded []statecache.Row
	for rows.Next() {
		r, err := statecache.Next(rows)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(loaded) == 0 {
		return tree.NewSession(localRoot), nil
	}
	return tree.Rehydrate(localRoot, loaded), nil
}

// RunSync performs one reconciliation pass for ruleName: it fetches a
// fresh cloud-side tree, builds the root triplet row, and hands both to
// the reconciler's recursive walk. Unlike the older flat-diff engine
// there is no separate plan artifact to inspect beforehand; a pass
// decides and acts on each row as it's visited.
func (s *SyncService) RunSync(ctx context.Context, ruleName string) (*Report, error) {
	logger.Get().Debug("running sync", "rule", ruleName)

	pair, err := s.getPair(ctx, ruleName)
	if err != nil {
		logger.Get().Error("failed to wire sync pair", "rule", ruleName, "error", err)
		return nil, err
	}

	cloudRoot, err := pair.fetcher.FetchTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule %s: fetching cloud tree: %w", ruleName, err)
	}
	pair.setCloudIndex(indexCloudTree(cloudRoot))

	rootRow := &triplet.Row{
		SyncNode:  pair.session.Root,
		CloudNode: cloudRoot,
	}

	settled, err := pair.reconciler.RecursiveSync(ctx, pair.session, rootRow, pair.localRoot)
	if err != nil {
		return nil, fmt.Errorf("rule %s: reconciling: %w", ruleName, err)
	}

	if pair.committer.Pending() {
		if err := pair.committer.Flush(ctx); err != nil {
			return nil, fmt.Errorf("rule %s: flushing state cache: %w", ruleName, err)
		}
	}

	conflicts := 0
	if pair.session.Root.Flags.Conflicts != tree.Resolved {
		conflicts = 1
	}

	logger.Get().Info("sync pass completed", "rule", ruleName, "settled", settled, "conflicts", conflicts)

	return &Report{RuleName: ruleName, Settled: settled, Conflicts: conflicts}, nil
}

// Close releases every rule's engine resources.
func (s *SyncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for name, p := range s.pairs {
		if err := p.store.Close(); err != nil {
			lastErr = err
		}
		delete(s.pairs, name)
	}
	s.pool.Release()
	return lastErr
}
