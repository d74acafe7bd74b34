package gitindex

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRevision is the parent of every caller revision error.
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrRevisionNotFound indicates the revision does not resolve to any object.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrNotACommit indicates the revision resolves to an object that is not a commit.
	ErrNotACommit = errors.New("revision is not a commit")
)

// Revision argument names used in RevisionError.
const (
	ArgFromRev = "from_rev"
	ArgToRev   = "to_rev"
)

// RevisionError reports a caller-supplied revision that cannot be used.
// It matches ErrInvalidRevision and the specific cause with errors.Is.
type RevisionError struct {
	Arg  string
	Rev  string
	Kind ObjectKind
	Err  error
}

func (e *RevisionError) Error() string {
	if errors.Is(e.Err, ErrNotACommit) {
		return fmt.Sprintf("%s: %q is a %s, not a commit", e.Arg, e.Rev, e.Kind)
	}
	return fmt.Sprintf("%s: %q: %v", e.Arg, e.Rev, e.Err)
}

func (e *RevisionError) Unwrap() []error {
	return []error{ErrInvalidRevision, e.Err}
}

// ResolveRevision resolves rev to a commit sha. The outcome is a commit sha,
// a RevisionError wrapping ErrNotACommit or ErrRevisionNotFound, or an
// unrelated store error which is returned as is.
func ResolveRevision(store ObjectStore, arg, rev string) (string, error) {
	kind, id, err := store.Lookup(rev)
	if err != nil {
		if errors.Is(err, ErrRevisionNotFound) {
			return "", &RevisionError{Arg: arg, Rev: rev, Err: ErrRevisionNotFound}
		}
		return "", fmt.Errorf("resolve %s %q: %w", arg, rev, err)
	}
	if kind != KindCommit {
		return "", &RevisionError{Arg: arg, Rev: rev, Kind: kind, Err: ErrNotACommit}
	}
	return id, nil
}
