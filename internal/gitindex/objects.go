package gitindex

import (
	"time"
)

// ObjectKind is the type of an object in the repository object database.
type ObjectKind int

const (
	KindUnknown ObjectKind = iota
	KindCommit
	KindTree
	KindBlob
	KindTag
)

func (k ObjectKind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// EntryKind classifies a tree or index entry.
type EntryKind int

const (
	EntryBlob EntryKind = iota
	EntryTree
	// EntrySubmodule is a gitlink (mode 160000). It points at a commit in
	// another repository and is never indexed.
	EntrySubmodule
)

// TreeEntry is one entry of a tree, or one entry of the index when Name is a
// full path.
type TreeEntry struct {
	Name string
	OID  string
	Kind EntryKind
}

// DeltaStatus tags a changed path between two revisions.
type DeltaStatus int

const (
	DeltaAdded DeltaStatus = iota
	DeltaModified
	DeltaDeleted
)

func (s DeltaStatus) String() string {
	switch s {
	case DeltaAdded:
		return "added"
	case DeltaModified:
		return "modified"
	case DeltaDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Delta is a single changed path between two revisions. OldPath/OldOID are
// empty for additions, NewPath/NewOID for deletions.
type Delta struct {
	Status  DeltaStatus
	OldPath string
	OldOID  string
	OldKind EntryKind
	NewPath string
	NewOID  string
	NewKind EntryKind
}

// Signature of a commit author or committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit is the metadata of one commit.
type Commit struct {
	SHA       string
	Author    Signature
	Committer Signature
	Message   string
}

// Blob is the content of one file at one path.
type Blob struct {
	OID     string
	Path    string
	Content []byte
}

// ObjectStore is the version-control object database the walker reads from.
// Implementations must be safe for concurrent reads.
type ObjectStore interface {
	// Lookup resolves a revision expression to an object id and reports the
	// kind of the object it names. Unresolvable revisions return
	// ErrRevisionNotFound.
	Lookup(rev string) (ObjectKind, string, error)

	// Head returns the sha of the commit HEAD points at.
	Head() (string, error)

	// IsBare reports whether the repository has no working copy.
	IsBare() bool

	Commit(sha string) (Commit, error)

	// CommitTree returns the root tree id of a commit.
	CommitTree(sha string) (string, error)

	// TreeEntries lists one level of a tree.
	TreeEntries(treeID string) ([]TreeEntry, error)

	Blob(oid string) ([]byte, error)

	// IndexEntries lists the staged entries of a working copy, with full
	// paths as names.
	IndexEntries() ([]TreeEntry, error)

	// Diff returns the changes turning from into to, in the store's natural
	// emission order.
	Diff(from, to string) ([]Delta, error)

	// Log walks commits reachable from to and not reachable from from.
	// An empty from walks the whole history of to.
	Log(from, to string, fn func(Commit) error) error

	// ObjectIDs enumerates every object in the database.
	ObjectIDs(fn func(id string, kind ObjectKind) error) error
}
