package gitindex

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRepoSpec indicates a repository entry that cannot be parsed.
	ErrInvalidRepoSpec = errors.New("invalid repository spec")

	// Repository ids end up in document ids and metrics labels.
	repoIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// RepoSpec is a configured repository: its identity and where it lives.
type RepoSpec struct {
	ID   string
	Path string
}

// ParseRepoSpec parses a repository entry of the form "path" or "id=path".
// Without an explicit id, the id is derived from the path.
//
// Examples:
//   - /src/acme/widgets -> id: src_acme_widgets
//   - widgets=/src/acme/widgets -> id: widgets
func ParseRepoSpec(s string) (RepoSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RepoSpec{}, fmt.Errorf("%w: empty entry", ErrInvalidRepoSpec)
	}

	id, path, explicit := strings.Cut(s, "=")
	if !explicit {
		path = s
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return RepoSpec{}, fmt.Errorf("%w: %q has no path", ErrInvalidRepoSpec, s)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return RepoSpec{}, fmt.Errorf("%w: %q: %v", ErrInvalidRepoSpec, s, err)
	}

	if explicit {
		id = strings.TrimSpace(id)
	} else {
		id = PathToRepoID(abs)
	}
	if !IsValidRepoID(id) {
		return RepoSpec{}, fmt.Errorf("%w: %q is not a valid repository id", ErrInvalidRepoSpec, id)
	}

	return RepoSpec{ID: id, Path: abs}, nil
}

// PathToRepoID converts a repository path to a repository id. The id stays
// stable as long as the repository does not move.
//
// Examples:
//   - /src/acme/widgets -> src_acme_widgets
//   - /src/acme/widgets/.git -> src_acme_widgets
//   - /srv/mirrors/widgets.git -> srv_mirrors_widgets
func PathToRepoID(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	p = strings.TrimSuffix(p, "/.git")
	p = strings.TrimSuffix(p, ".git")
	p = strings.Trim(p, "/")
	return sanitizeRepoID(p)
}

// sanitizeRepoID replaces separators and characters that are awkward in ids
// with underscores.
func sanitizeRepoID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_.-")
}

// IsValidRepoID checks that id is usable as a repository identity.
func IsValidRepoID(id string) bool {
	return repoIDPattern.MatchString(id)
}
