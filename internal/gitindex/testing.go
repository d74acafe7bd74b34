package gitindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TestRepo is an on-disk repository for tests. Commits get strictly
// increasing timestamps so history order is deterministic.
// This is exported for use in integration tests.
type TestRepo struct {
	Path string

	t    testing.TB
	repo *git.Repository
	wt   *git.Worktree
	when time.Time
}

// NewTestRepo initializes an empty non-bare repository in a temp dir.
func NewTestRepo(t testing.TB) *TestRepo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}

	return &TestRepo{
		Path: dir,
		t:    t,
		repo: repo,
		wt:   wt,
		when: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// WriteFile writes content to name and stages it.
func (r *TestRepo) WriteFile(name string, content []byte) {
	r.t.Helper()

	full := filepath.Join(r.Path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		r.t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		r.t.Fatalf("Failed to write %s: %v", name, err)
	}
	if _, err := r.wt.Add(name); err != nil {
		r.t.Fatalf("Failed to stage %s: %v", name, err)
	}
}

// RemoveFile deletes name from the working copy and the index.
func (r *TestRepo) RemoveFile(name string) {
	r.t.Helper()

	if _, err := r.wt.Remove(name); err != nil {
		r.t.Fatalf("Failed to remove %s: %v", name, err)
	}
}

// Commit records the staged changes and returns the new commit sha.
func (r *TestRepo) Commit(message string) string {
	r.t.Helper()

	sig := Signature{Name: "Test User", Email: "test@example.com"}
	return r.CommitAs(message, sig, sig)
}

// CommitAs commits with explicit author and committer. Zero signature times
// are filled from the repository clock.
func (r *TestRepo) CommitAs(message string, author, committer Signature) string {
	r.t.Helper()

	r.when = r.when.Add(time.Minute)
	if author.When.IsZero() {
		author.When = r.when
	}
	if committer.When.IsZero() {
		committer.When = r.when
	}

	hash, err := r.wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Committer:         &object.Signature{Name: committer.Name, Email: committer.Email, When: committer.When},
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatalf("Failed to commit: %v", err)
	}
	return hash.String()
}

// Checkout moves HEAD and the working copy to rev, detached.
func (r *TestRepo) Checkout(rev string) {
	r.t.Helper()

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		r.t.Fatalf("Failed to resolve %s: %v", rev, err)
	}
	if err := r.wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		r.t.Fatalf("Failed to checkout %s: %v", rev, err)
	}
}

// Tag creates a lightweight tag at the current HEAD.
func (r *TestRepo) Tag(name string) {
	r.t.Helper()

	head, err := r.repo.Head()
	if err != nil {
		r.t.Fatalf("Failed to resolve HEAD: %v", err)
	}
	if _, err := r.repo.CreateTag(name, head.Hash(), nil); err != nil {
		r.t.Fatalf("Failed to create tag %s: %v", name, err)
	}
}

// Store opens the repository as an ObjectStore.
func (r *TestRepo) Store() *GitObjectStore {
	r.t.Helper()

	store, err := OpenGitObjectStore(r.Path)
	if err != nil {
		r.t.Fatalf("Failed to open object store: %v", err)
	}
	return store
}

// BlobID returns the object id of name in commit sha.
func (r *TestRepo) BlobID(sha, name string) string {
	r.t.Helper()

	entry, err := NewWalker(r.Store()).FindBlob(sha, name)
	if err != nil {
		r.t.Fatalf("Failed to find %s in %s: %v", name, sha, err)
	}
	return entry.OID
}

// TreeID returns the root tree id of commit sha.
func (r *TestRepo) TreeID(sha string) string {
	r.t.Helper()

	id, err := r.Store().CommitTree(sha)
	if err != nil {
		r.t.Fatalf("Failed to load tree of %s: %v", sha, err)
	}
	return id
}
