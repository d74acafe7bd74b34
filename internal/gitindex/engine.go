package gitindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sha1n/relic-gitindex/internal/domain"
)

const (
	// MaxBatchSize is the maximum number of mutations per batch.
	MaxBatchSize = 100

	// MaxBatchBytes is the maximum content bytes per batch (10MB).
	MaxBatchBytes = 10 * 1024 * 1024
)

// EngineConfig holds everything an Engine needs. Nothing is resolved lazily.
type EngineConfig struct {
	RepositoryID string
	Objects      ObjectStore
	Index        IndexWriter

	// Classifier decides which blobs are text. Defaults to a PathClassifier
	// with DefaultMaxBlobSize.
	Classifier TextClassifier

	// Normalizer converts blob bytes to text. Defaults to a Normalizer with
	// the CharsetDetector. Results are cached by blob oid.
	Normalizer ContentNormalizer
	CacheSize  int

	// Cache, when set, is used as is and may be shared between engines.
	// Normalizer and CacheSize are then ignored.
	Cache *CachingNormalizer

	Scheme    BlobKeyScheme
	BatchSize int
	Logger    *slog.Logger
	Metrics   *Metrics
}

// SyncStats summarizes one synchronization pass.
type SyncStats struct {
	// Revision is the resolved target commit.
	Revision string
	Upserted int
	Deleted  int
	Skipped  int
}

// Engine turns walker output into index mutations for one repository.
type Engine struct {
	rid        string
	objects    ObjectStore
	index      IndexWriter
	walker     *Walker
	mapper     Mapper
	classifier TextClassifier
	normalizer *CachingNormalizer
	batchSize  int
	logger     *slog.Logger
	metrics    *Metrics
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.RepositoryID == "" {
		return nil, errors.New("repository id is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index writer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("repo_id", cfg.RepositoryID)

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = NewPathClassifier(DefaultMaxBlobSize)
	}
	normalizer := cfg.Cache
	if normalizer == nil {
		inner := cfg.Normalizer
		if inner == nil {
			inner = NewNormalizer(nil, logger)
		}
		var err error
		if normalizer, err = NewCachingNormalizer(inner, cfg.CacheSize); err != nil {
			return nil, err
		}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = MaxBatchSize
	}

	return &Engine{
		rid:        cfg.RepositoryID,
		objects:    cfg.Objects,
		index:      cfg.Index,
		walker:     NewWalker(cfg.Objects),
		mapper:     Mapper{RepositoryID: cfg.RepositoryID, Scheme: cfg.Scheme},
		classifier: classifier,
		normalizer: normalizer,
		batchSize:  batchSize,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// BlobContent is a blob read directly from the object store.
type BlobContent struct {
	Revision string `json:"revision"`
	Path     string `json:"path"`
	OID      string `json:"oid"`
	Size     int    `json:"size"`
	Binary   bool   `json:"binary"`
	Text     string `json:"text,omitempty"`
}

// ReadBlob returns the normalized content of the blob at path in rev, or in
// the head commit when rev is empty. Binary content is reported, not returned.
func (e *Engine) ReadBlob(rev, p string) (BlobContent, error) {
	var sha string
	var err error
	if rev == "" {
		sha, err = e.objects.Head()
	} else {
		sha, err = ResolveRevision(e.objects, ArgToRev, rev)
	}
	if err != nil {
		return BlobContent{}, err
	}

	entry, err := e.walker.FindBlob(sha, p)
	if err != nil {
		return BlobContent{}, err
	}
	content, err := e.objects.Blob(entry.OID)
	if err != nil {
		return BlobContent{}, err
	}

	out := BlobContent{Revision: sha, Path: entry.Name, OID: entry.OID, Size: len(content)}
	text, ok := e.normalizer.NormalizeBlob(entry.OID, content)
	if !ok || LooksBinary(content) {
		out.Binary = true
		return out, nil
	}
	out.Text = text
	return out, nil
}

// resolveRange validates both revision arguments before any walking. An
// omitted toRev resolves to the repository head.
func (e *Engine) resolveRange(fromRev, toRev string) (from, to string, err error) {
	if toRev == "" {
		to, err = e.objects.Head()
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve head: %w", err)
		}
	} else if to, err = ResolveRevision(e.objects, ArgToRev, toRev); err != nil {
		return "", "", err
	}

	if fromRev != "" {
		if from, err = ResolveRevision(e.objects, ArgFromRev, fromRev); err != nil {
			return "", "", err
		}
	}
	return from, to, nil
}

// SynchronizeBlobs indexes blob content. Without fromRev every blob of the
// target snapshot is upserted; with it only the paths changed between the two
// revisions are upserted or deleted. Non-text blobs are skipped on both paths.
func (e *Engine) SynchronizeBlobs(ctx context.Context, fromRev, toRev string) (SyncStats, error) {
	start := time.Now()
	defer e.metrics.observeSync(domain.TypeBlob, start)

	from, to, err := e.resolveRange(fromRev, toRev)
	if err != nil {
		return SyncStats{}, err
	}

	stats := SyncStats{Revision: to}
	b := newBatcher(ctx, e.index, e.batchSize)

	if from == "" {
		e.logger.Info("Full blob sync", "revision", to)
		err = e.walker.WalkSnapshot(ctx, to, toRev == "", func(entry TreeEntry) error {
			return e.upsertBlob(b, &stats, entry.Name, entry.OID, to)
		})
	} else {
		e.logger.Info("Delta blob sync", "from", from, "to", to)
		err = e.walker.WalkDelta(ctx, from, to, func(d Delta) error {
			return e.applyDelta(b, &stats, d, to)
		})
	}
	if err != nil {
		return stats, err
	}

	if err := b.flush(); err != nil {
		return stats, err
	}

	e.logger.Info("Blob sync complete", "revision", to,
		"upserted", stats.Upserted, "deleted", stats.Deleted, "skipped", stats.Skipped)
	return stats, nil
}

func (e *Engine) applyDelta(b *batcher, stats *SyncStats, d Delta, target string) error {
	if d.Status != DeltaDeleted {
		if d.NewKind != EntryBlob {
			e.skip(stats, d.NewPath, SkipSubmodule)
			return nil
		}
		return e.upsertBlob(b, stats, d.NewPath, d.NewOID, target)
	}

	if d.OldKind != EntryBlob {
		e.skip(stats, d.OldPath, SkipSubmodule)
		return nil
	}
	content, err := e.objects.Blob(d.OldOID)
	if err != nil {
		return err
	}
	if !e.classifier.IsText(d.OldPath, content) {
		e.skip(stats, d.OldPath, SkipExcluded)
		return nil
	}

	if err := b.add(Mutation{Op: OpDelete, ID: e.mapper.BlobID(target, d.OldPath)}, 0); err != nil {
		return err
	}
	stats.Deleted++
	e.metrics.recordDelete()
	return nil
}

func (e *Engine) upsertBlob(b *batcher, stats *SyncStats, path, oid, target string) error {
	content, err := e.objects.Blob(oid)
	if err != nil {
		return err
	}
	if !e.classifier.IsText(path, content) {
		e.skip(stats, path, SkipExcluded)
		return nil
	}

	text, ok := e.normalizer.NormalizeBlob(oid, content)
	if !ok {
		e.skip(stats, path, SkipBinary)
		return nil
	}

	m := Mutation{
		Op:  OpUpsert,
		ID:  e.mapper.BlobID(target, path),
		Doc: e.mapper.Blob(oid, text, target),
	}
	if err := b.add(m, len(text)); err != nil {
		return err
	}
	stats.Upserted++
	e.metrics.recordUpsert(domain.TypeBlob)
	return nil
}

func (e *Engine) skip(stats *SyncStats, path, reason string) {
	stats.Skipped++
	e.metrics.recordSkip(reason)
	e.logger.Debug("Skipping blob", "path", path, "reason", reason)
}

// SynchronizeCommits indexes commit metadata for the commits reachable from
// toRev but not from fromRev. With neither given, every commit object in the
// repository is indexed.
func (e *Engine) SynchronizeCommits(ctx context.Context, fromRev, toRev string) (SyncStats, error) {
	start := time.Now()
	defer e.metrics.observeSync(domain.TypeCommit, start)

	var from, to string
	var err error
	if fromRev != "" || toRev != "" {
		if from, to, err = e.resolveRange(fromRev, toRev); err != nil {
			return SyncStats{}, err
		}
	}

	stats := SyncStats{Revision: to}
	b := newBatcher(ctx, e.index, e.batchSize)

	e.logger.Info("Commit sync", "from", from, "to", to)
	err = e.walker.WalkCommits(ctx, from, to, func(c Commit) error {
		doc := e.mapper.Commit(c)
		if err := b.add(Mutation{Op: OpUpsert, ID: e.mapper.CommitID(c.SHA), Doc: doc}, len(c.Message)); err != nil {
			return err
		}
		stats.Upserted++
		e.metrics.recordUpsert(domain.TypeCommit)
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := b.flush(); err != nil {
		return stats, err
	}

	e.logger.Info("Commit sync complete", "upserted", stats.Upserted)
	return stats, nil
}

// batcher buffers mutations and flushes them in order when either the count
// or the byte limit is reached.
type batcher struct {
	ctx     context.Context
	writer  IndexWriter
	limit   int
	pending []Mutation
	bytes   int
}

func newBatcher(ctx context.Context, writer IndexWriter, limit int) *batcher {
	return &batcher{ctx: ctx, writer: writer, limit: limit}
}

func (b *batcher) add(m Mutation, size int) error {
	b.pending = append(b.pending, m)
	b.bytes += size
	if len(b.pending) >= b.limit || b.bytes >= MaxBatchBytes {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.writer.Apply(b.ctx, b.pending); err != nil {
		return err
	}
	b.pending = nil
	b.bytes = 0
	return nil
}
