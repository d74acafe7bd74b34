package gitindex

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Walker enumerates the repository objects that need indexing.
type Walker struct {
	store ObjectStore
}

// NewWalker creates a walker over store.
func NewWalker(store ObjectStore) *Walker {
	return &Walker{store: store}
}

// WalkSnapshot yields every blob reachable from the tree of commit sha, with
// full paths built by joining nested tree names. When useIndex is set and the
// repository has a working copy, the staged index entries are walked instead.
// Submodule entries are skipped.
func (w *Walker) WalkSnapshot(ctx context.Context, sha string, useIndex bool, fn func(TreeEntry) error) error {
	if useIndex && !w.store.IsBare() {
		entries, err := w.store.IndexEntries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.Kind != EntryBlob {
				continue
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	}

	treeID, err := w.store.CommitTree(sha)
	if err != nil {
		return err
	}
	return w.walkTree(ctx, treeID, "", fn)
}

func (w *Walker) walkTree(ctx context.Context, treeID, prefix string, fn func(TreeEntry) error) error {
	entries, err := w.store.TreeEntries(treeID)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		full := prefix + e.Name
		switch e.Kind {
		case EntryTree:
			if err := w.walkTree(ctx, e.OID, full+"/", fn); err != nil {
				return err
			}
		case EntryBlob:
			if err := fn(TreeEntry{Name: full, OID: e.OID, Kind: EntryBlob}); err != nil {
				return err
			}
		}
	}
	return nil
}

// WalkDelta yields each path changed between from and to exactly once.
// Deltas are visited in reverse of the order the object store emits them;
// callers that depend on application order rely on this.
func (w *Walker) WalkDelta(ctx context.Context, from, to string, fn func(Delta) error) error {
	deltas, err := w.store.Diff(from, to)
	if err != nil {
		return err
	}

	for i := len(deltas) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(deltas[i]); err != nil {
			return err
		}
	}
	return nil
}

// WalkCommits yields the commits reachable from to but not from from, in the
// order of the underlying log. With neither bound set, every commit object in
// the object database is yielded, in no particular order.
func (w *Walker) WalkCommits(ctx context.Context, from, to string, fn func(Commit) error) error {
	if from == "" && to == "" {
		return w.store.ObjectIDs(func(id string, kind ObjectKind) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if kind != KindCommit {
				return nil
			}
			c, err := w.store.Commit(id)
			if err != nil {
				return err
			}
			return fn(c)
		})
	}

	if to == "" {
		return fmt.Errorf("commit range walk requires a target revision")
	}
	return w.store.Log(from, to, func(c Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(c)
	})
}

// ErrPathNotFound indicates no blob exists at a path in a commit's tree.
var ErrPathNotFound = errors.New("path not found")

// FindBlob resolves path to its blob in the tree of commit sha. Paths are
// slash separated and relative to the repository root.
func (w *Walker) FindBlob(sha, p string) (TreeEntry, error) {
	treeID, err := w.store.CommitTree(sha)
	if err != nil {
		return TreeEntry{}, err
	}

	parts := strings.Split(strings.Trim(path.Clean("/"+p), "/"), "/")
	for i, name := range parts {
		entries, err := w.store.TreeEntries(treeID)
		if err != nil {
			return TreeEntry{}, err
		}

		var found *TreeEntry
		for j := range entries {
			if entries[j].Name == name {
				found = &entries[j]
				break
			}
		}
		if found == nil {
			return TreeEntry{}, fmt.Errorf("%w: %s", ErrPathNotFound, p)
		}

		last := i == len(parts)-1
		switch {
		case last && found.Kind == EntryBlob:
			return TreeEntry{Name: strings.Join(parts, "/"), OID: found.OID, Kind: EntryBlob}, nil
		case !last && found.Kind == EntryTree:
			treeID = found.OID
		default:
			return TreeEntry{}, fmt.Errorf("%w: %s", ErrPathNotFound, p)
		}
	}
	return TreeEntry{}, fmt.Errorf("%w: %s", ErrPathNotFound, p)
}
