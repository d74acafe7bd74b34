package gitindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/sha1n/relic-gitindex/internal/domain"
	"golang.org/x/sync/errgroup"
)

// MaxParallelSyncs is the maximum number of concurrent repository syncs.
const MaxParallelSyncs = 4

var (
	// ErrUnknownRepository indicates a repository id that is not configured.
	ErrUnknownRepository = errors.New("unknown repository")

	// ErrServiceClosed indicates the service has been closed.
	ErrServiceClosed = errors.New("service is closed")

	// ErrIndexBusy indicates another process owns the index.
	ErrIndexBusy = errors.New("index is in use by another process")
)

// RepoSyncResult summarizes one repository sync.
type RepoSyncResult struct {
	RepositoryID string
	Full         bool
	UpToDate     bool
	Blobs        SyncStats
	Commits      SyncStats
}

// Service keeps the shared index in sync with every configured repository and
// answers searches over it. One process at a time owns a base dir.
type Service struct {
	settings *config.IndexSettings
	scheme   BlobKeyScheme
	repos    map[string]RepoSpec
	order    []string

	index        *BleveIndex
	searcher     *Searcher
	manifest     *Manifest
	manifestPath string
	lock         *FileLock
	cache        *CachingNormalizer
	classifier   TextClassifier
	metrics      *Metrics
	logger       *slog.Logger

	syncMu sync.Mutex
	ready  atomic.Bool
	mu     sync.RWMutex
	closed bool
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithMetrics records sync metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService takes ownership of the base dir, then opens or creates the
// shared index and loads the manifest.
func NewService(settings *config.IndexSettings, opts ...ServiceOption) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}

	scheme, err := ParseBlobKeyScheme(settings.BlobKeyScheme)
	if err != nil {
		return nil, err
	}

	s := &Service{
		settings:     settings,
		scheme:       scheme,
		repos:        make(map[string]RepoSpec),
		manifestPath: filepath.Join(settings.BaseDir, ManifestFilename),
		lock:         NewFileLock(filepath.Join(settings.BaseDir, LockFileName)),
		classifier:   NewPathClassifier(settings.MaxBlobSize),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, entry := range settings.Repositories {
		spec, err := ParseRepoSpec(entry)
		if err != nil {
			return nil, err
		}
		if prev, dup := s.repos[spec.ID]; dup {
			return nil, fmt.Errorf("%w: %s and %s share id %q", ErrInvalidRepoSpec, prev.Path, spec.Path, spec.ID)
		}
		s.repos[spec.ID] = spec
		s.order = append(s.order, spec.ID)
	}

	if err := os.MkdirAll(settings.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	if err := s.acquire(); err != nil {
		return nil, err
	}

	if s.cache, err = NewCachingNormalizer(NewNormalizer(nil, s.logger), settings.CacheSize); err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}

	if s.manifest, err = LoadManifest(s.manifestPath); err != nil {
		_ = s.lock.Unlock()
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	if s.index, err = OpenBleveIndex(filepath.Join(settings.BaseDir, IndexDirName)); err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	s.searcher = NewSearcher(s.index, scheme)

	return s, nil
}

// acquire takes the base dir lock, waiting up to the sync timeout for
// another process to release it.
func (s *Service) acquire() error {
	acquired, err := s.lock.TryLock()
	if err != nil {
		return err
	}
	if acquired {
		return nil
	}

	s.logger.Info("Another process owns the index, waiting", "lock", s.lock.Path())
	if err := s.lock.Lock(s.settings.SyncTimeout); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return fmt.Errorf("%w: %s", ErrIndexBusy, s.settings.BaseDir)
		}
		return err
	}
	return nil
}

// IsReady reports whether a full sync pass has completed since startup.
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// RepositoryIDs returns the configured repository ids in configuration order.
func (s *Service) RepositoryIDs() []string {
	return append([]string(nil), s.order...)
}

// Repository returns the configured repository with the given id.
func (s *Service) Repository(id string) (RepoSpec, bool) {
	spec, ok := s.repos[id]
	return spec, ok
}

// Manifest returns the sync state.
func (s *Service) Manifest() *Manifest {
	return s.manifest
}

// SyncAll brings every configured repository up to date and drops the
// documents of repositories that are no longer configured. A failing
// repository does not stop the others.
func (s *Service) SyncAll(ctx context.Context) ([]RepoSyncResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	for _, id := range s.manifest.RemoveStaleRepos(s.order) {
		s.logger.Info("Removing stale repository", "repo_id", id)
		if _, err := s.index.DeleteRepository(ctx, id, false); err != nil {
			s.logger.Error("Failed to delete documents of stale repository", "repo_id", id, "error", err)
		}
	}

	var (
		mu      sync.Mutex
		results []RepoSyncResult
		errs    []error
	)

	var g errgroup.Group
	g.SetLimit(MaxParallelSyncs)
	for _, id := range s.order {
		spec := s.repos[id]
		g.Go(func() error {
			res, err := s.syncRepo(ctx, spec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("Failed to sync repository", "repo_id", spec.ID, "error", err)
				errs = append(errs, fmt.Errorf("sync %s: %w", spec.ID, err))
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()

	s.manifest.UpdateLastSync()
	if err := s.manifest.Save(s.manifestPath); err != nil {
		errs = append(errs, err)
	}
	s.ready.Store(true)

	sort.Slice(results, func(i, j int) bool { return results[i].RepositoryID < results[j].RepositoryID })
	return results, errors.Join(errs...)
}

// SyncOne brings a single repository up to date.
func (s *Service) SyncOne(ctx context.Context, id string) (RepoSyncResult, error) {
	if err := s.checkOpen(); err != nil {
		return RepoSyncResult{}, err
	}
	spec, ok := s.repos[id]
	if !ok {
		return RepoSyncResult{}, fmt.Errorf("%w: %s", ErrUnknownRepository, id)
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	res, err := s.syncRepo(ctx, spec)
	if saveErr := s.manifest.Save(s.manifestPath); saveErr != nil && err == nil {
		err = saveErr
	}
	return res, err
}

// syncRepo synchronizes one repository against the manifest: nothing when
// head has not moved, a delta from the last synced commit when it still
// exists, and a full rebuild otherwise.
func (s *Service) syncRepo(ctx context.Context, spec RepoSpec) (res RepoSyncResult, err error) {
	res.RepositoryID = spec.ID
	defer func() {
		if err != nil {
			s.manifest.SetRepoError(spec.ID, spec.Path, err.Error())
		}
	}()

	engine, store, err := s.openEngine(spec)
	if err != nil {
		return res, err
	}

	head, err := store.Head()
	if err != nil {
		return res, fmt.Errorf("failed to resolve head: %w", err)
	}

	state, known := s.manifest.RepoState(spec.ID)
	if known && state.LastCommit == head && state.Error == "" {
		s.logger.Info("Repository already up to date", "repo_id", spec.ID, "commit", head)
		res.UpToDate = true
		return res, nil
	}

	from := ""
	if known && state.LastCommit != "" {
		if _, err := ResolveRevision(store, ArgFromRev, state.LastCommit); err == nil {
			from = state.LastCommit
		} else if errors.Is(err, ErrInvalidRevision) {
			s.logger.Warn("Last synced commit is gone, rebuilding", "repo_id", spec.ID, "commit", state.LastCommit)
			if _, err := s.index.DeleteRepository(ctx, spec.ID, true); err != nil {
				return res, err
			}
		} else {
			return res, err
		}
	}
	res.Full = from == ""

	if res.Blobs, err = engine.SynchronizeBlobs(ctx, from, head); err != nil {
		return res, fmt.Errorf("blob sync failed: %w", err)
	}
	if res.Commits, err = engine.SynchronizeCommits(ctx, from, head); err != nil {
		return res, fmt.Errorf("commit sync failed: %w", err)
	}

	blobs, commits, err := s.index.RepositoryCounts(ctx, spec.ID)
	if err != nil {
		return res, err
	}

	s.manifest.SetRepoState(spec.ID, RepoState{
		Path:        spec.Path,
		LastCommit:  head,
		LastSynced:  time.Now().UTC(),
		BlobCount:   int(blobs),
		CommitCount: int(commits),
	})
	return res, nil
}

// SyncRange runs explicit blob and commit passes over a revision range
// without consulting or updating the manifest. Either pass can be skipped.
func (s *Service) SyncRange(ctx context.Context, id, fromRev, toRev string, blobs, commits bool) (RepoSyncResult, error) {
	if err := s.checkOpen(); err != nil {
		return RepoSyncResult{}, err
	}
	spec, ok := s.repos[id]
	if !ok {
		return RepoSyncResult{}, fmt.Errorf("%w: %s", ErrUnknownRepository, id)
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	engine, _, err := s.openEngine(spec)
	if err != nil {
		return RepoSyncResult{}, err
	}

	res := RepoSyncResult{RepositoryID: id, Full: fromRev == ""}
	if blobs {
		if res.Blobs, err = engine.SynchronizeBlobs(ctx, fromRev, toRev); err != nil {
			return res, err
		}
	}
	if commits {
		if res.Commits, err = engine.SynchronizeCommits(ctx, fromRev, toRev); err != nil {
			return res, err
		}
	}
	return res, nil
}

// openEngine opens the repository afresh so that objects and packs written
// since the last pass are visible.
func (s *Service) openEngine(spec RepoSpec) (*Engine, *GitObjectStore, error) {
	store, err := OpenGitObjectStore(spec.Path)
	if err != nil {
		return nil, nil, err
	}

	engine, err := NewEngine(EngineConfig{
		RepositoryID: spec.ID,
		Objects:      store,
		Index:        s.index,
		Classifier:   s.classifier,
		Cache:        s.cache,
		Scheme:       s.scheme,
		BatchSize:    s.settings.BatchSize,
		Logger:       s.logger,
		Metrics:      s.metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}

// Run keeps the index in sync until ctx is canceled: once at start, then on
// every sync interval and, when watching is enabled, whenever a repository's
// refs change.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.SyncAll(ctx); err != nil {
		s.logger.Error("Sync failed", "error", err)
	}

	var changes <-chan string
	if s.settings.Watch {
		w, err := s.newWatcher()
		if err != nil {
			s.logger.Warn("Watching disabled", "error", err)
		} else {
			defer func() { _ = w.Close() }()
			changes = w.Events()
		}
	}

	ticker := time.NewTicker(s.settings.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				s.logger.Error("Sync failed", "error", err)
			}
		case id := <-changes:
			s.logger.Info("Repository changed", "repo_id", id)
			if _, err := s.SyncOne(ctx, id); err != nil {
				s.logger.Error("Sync failed", "repo_id", id, "error", err)
			}
		}
	}
}

func (s *Service) newWatcher() (*Watcher, error) {
	gitDirs := make(map[string]string, len(s.order))
	for _, id := range s.order {
		store, err := OpenGitObjectStore(s.repos[id].Path)
		if err != nil {
			return nil, err
		}
		gitDirs[id] = store.GitDir()
	}
	return NewWatcher(gitDirs, DefaultDebounce, s.logger)
}

// Search runs a search over the shared index. The page size is capped by
// maxPerPage when positive.
func (s *Service) Search(ctx context.Context, text string, params SearchParams, maxPerPage int) (domain.SearchResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.SearchResults{}, ErrServiceClosed
	}

	if params.RepositoryID != "" {
		if _, ok := s.repos[params.RepositoryID]; !ok {
			return domain.SearchResults{}, fmt.Errorf("%w: %s", ErrUnknownRepository, params.RepositoryID)
		}
	}
	if maxPerPage > 0 && params.Per > maxPerPage {
		params.Per = maxPerPage
	}
	return s.searcher.Search(ctx, text, params)
}

// ReadBlob reads a file of a configured repository at rev, or at head when
// rev is empty.
func (s *Service) ReadBlob(id, rev, path string) (BlobContent, error) {
	if err := s.checkOpen(); err != nil {
		return BlobContent{}, err
	}
	spec, ok := s.repos[id]
	if !ok {
		return BlobContent{}, fmt.Errorf("%w: %s", ErrUnknownRepository, id)
	}

	engine, _, err := s.openEngine(spec)
	if err != nil {
		return BlobContent{}, err
	}
	return engine.ReadBlob(rev, path)
}

func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// Close releases the index and the base dir lock.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	var errs []error
	if err := s.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close index: %w", err))
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
