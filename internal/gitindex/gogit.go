package gitindex

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// GitObjectStore implements ObjectStore on top of a go-git repository.
type GitObjectStore struct {
	repo *git.Repository
	path string
	bare bool
}

// OpenGitObjectStore opens the repository at path. The path may point at a
// working copy, any directory inside it, or a bare repository.
func OpenGitObjectStore(path string) (*GitObjectStore, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", path, err)
	}
	return NewGitObjectStore(repo, path)
}

// NewGitObjectStore wraps an already opened repository.
func NewGitObjectStore(repo *git.Repository, path string) (*GitObjectStore, error) {
	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to read repository config: %w", err)
	}
	return &GitObjectStore{
		repo: repo,
		path: path,
		bare: cfg.Core.IsBare,
	}, nil
}

// Path returns the path the store was opened with.
func (s *GitObjectStore) Path() string {
	return s.path
}

// GitDir returns the git directory of an on-disk repository, or "" for
// repositories not backed by the filesystem.
func (s *GitObjectStore) GitDir() string {
	if fs, ok := s.repo.Storer.(*filesystem.Storage); ok {
		return fs.Filesystem().Root()
	}
	return ""
}

// Lookup implements ObjectStore.
func (s *GitObjectStore) Lookup(rev string) (ObjectKind, string, error) {
	if rev == "" {
		return KindUnknown, "", fmt.Errorf("empty revision: %w", ErrRevisionNotFound)
	}

	// A full object id may name any kind of object; resolving it directly
	// lets callers tell a tree or blob id apart from garbage.
	if plumbing.IsHash(rev) {
		obj, err := s.repo.Storer.EncodedObject(plumbing.AnyObject, plumbing.NewHash(rev))
		if err == nil {
			return objectKind(obj.Type()), obj.Hash().String(), nil
		}
		if !errors.Is(err, plumbing.ErrObjectNotFound) {
			return KindUnknown, "", err
		}
	}

	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return KindUnknown, "", fmt.Errorf("%w: %v", ErrRevisionNotFound, err)
	}
	return KindCommit, hash.String(), nil
}

// Head implements ObjectStore.
func (s *GitObjectStore) Head() (string, error) {
	ref, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// IsBare implements ObjectStore.
func (s *GitObjectStore) IsBare() bool {
	return s.bare
}

// Commit implements ObjectStore.
func (s *GitObjectStore) Commit(sha string) (Commit, error) {
	c, err := s.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return Commit{}, fmt.Errorf("failed to load commit %s: %w", sha, err)
	}
	return toCommit(c), nil
}

// CommitTree implements ObjectStore.
func (s *GitObjectStore) CommitTree(sha string) (string, error) {
	c, err := s.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return "", fmt.Errorf("failed to load commit %s: %w", sha, err)
	}
	return c.TreeHash.String(), nil
}

// TreeEntries implements ObjectStore.
func (s *GitObjectStore) TreeEntries(treeID string) ([]TreeEntry, error) {
	tree, err := s.repo.TreeObject(plumbing.NewHash(treeID))
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", treeID, err)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{
			Name: e.Name,
			OID:  e.Hash.String(),
			Kind: entryKind(e.Mode),
		})
	}
	return entries, nil
}

// Blob implements ObjectStore.
func (s *GitObjectStore) Blob(oid string) ([]byte, error) {
	blob, err := s.repo.BlobObject(plumbing.NewHash(oid))
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", oid, err)
	}

	r, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", oid, err)
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}

// IndexEntries implements ObjectStore.
func (s *GitObjectStore) IndexEntries() ([]TreeEntry, error) {
	idx, err := s.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	entries := make([]TreeEntry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		entries = append(entries, TreeEntry{
			Name: e.Name,
			OID:  e.Hash.String(),
			Kind: entryKind(e.Mode),
		})
	}
	return entries, nil
}

// Diff implements ObjectStore.
func (s *GitObjectStore) Diff(from, to string) ([]Delta, error) {
	fromTree, err := s.commitTree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := s.commitTree(to)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", from, to, err)
	}

	deltas := make([]Delta, 0, len(changes))
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("failed to classify change: %w", err)
		}

		d := Delta{
			OldPath: ch.From.Name,
			OldOID:  hashOrEmpty(ch.From.TreeEntry.Hash),
			OldKind: entryKind(ch.From.TreeEntry.Mode),
			NewPath: ch.To.Name,
			NewOID:  hashOrEmpty(ch.To.TreeEntry.Hash),
			NewKind: entryKind(ch.To.TreeEntry.Mode),
		}
		switch action {
		case merkletrie.Insert:
			d.Status = DeltaAdded
		case merkletrie.Delete:
			d.Status = DeltaDeleted
		default:
			d.Status = DeltaModified
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

// Log implements ObjectStore.
func (s *GitObjectStore) Log(from, to string, fn func(Commit) error) error {
	tip, err := s.repo.CommitObject(plumbing.NewHash(to))
	if err != nil {
		return fmt.Errorf("failed to load commit %s: %w", to, err)
	}

	var hidden map[plumbing.Hash]bool
	if from != "" {
		base, err := s.repo.CommitObject(plumbing.NewHash(from))
		if err != nil {
			return fmt.Errorf("failed to load commit %s: %w", from, err)
		}
		hidden = make(map[plumbing.Hash]bool)
		err = object.NewCommitPreorderIter(base, nil, nil).ForEach(func(c *object.Commit) error {
			hidden[c.Hash] = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to walk history of %s: %w", from, err)
		}
	}

	return object.NewCommitPreorderIter(tip, hidden, nil).ForEach(func(c *object.Commit) error {
		return fn(toCommit(c))
	})
}

// ObjectIDs implements ObjectStore.
func (s *GitObjectStore) ObjectIDs(fn func(id string, kind ObjectKind) error) error {
	iter, err := s.repo.Storer.IterEncodedObjects(plumbing.AnyObject)
	if err != nil {
		return fmt.Errorf("failed to iterate objects: %w", err)
	}

	return iter.ForEach(func(obj plumbing.EncodedObject) error {
		return fn(obj.Hash().String(), objectKind(obj.Type()))
	})
}

func (s *GitObjectStore) commitTree(sha string) (*object.Tree, error) {
	c, err := s.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", sha, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree of %s: %w", sha, err)
	}
	return tree, nil
}

func toCommit(c *object.Commit) Commit {
	return Commit{
		SHA:       c.Hash.String(),
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
	}
}

func objectKind(t plumbing.ObjectType) ObjectKind {
	switch t {
	case plumbing.CommitObject:
		return KindCommit
	case plumbing.TreeObject:
		return KindTree
	case plumbing.BlobObject:
		return KindBlob
	case plumbing.TagObject:
		return KindTag
	default:
		return KindUnknown
	}
}

func entryKind(mode filemode.FileMode) EntryKind {
	switch mode {
	case filemode.Dir:
		return EntryTree
	case filemode.Submodule:
		return EntrySubmodule
	default:
		return EntryBlob
	}
}

func hashOrEmpty(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}
