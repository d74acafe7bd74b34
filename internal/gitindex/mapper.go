package gitindex

import (
	"fmt"
	"strings"

	"github.com/sha1n/relic-gitindex/internal/domain"
)

// BlobKeyScheme selects how blob document ids are composed.
type BlobKeyScheme string

const (
	// BlobKeyByRepository keys blobs as "{rid}_{path}". Re-indexing a path
	// overwrites the previous document and deletes find it again.
	BlobKeyByRepository BlobKeyScheme = "repository"

	// BlobKeyByRevision keys blobs as "{commit_sha}_{path}", one document per
	// path per indexing pass.
	BlobKeyByRevision BlobKeyScheme = "revision"
)

// ParseBlobKeyScheme parses a scheme name. The empty string selects
// BlobKeyByRepository.
func ParseBlobKeyScheme(s string) (BlobKeyScheme, error) {
	switch BlobKeyScheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", BlobKeyByRepository:
		return BlobKeyByRepository, nil
	case BlobKeyByRevision:
		return BlobKeyByRevision, nil
	default:
		return "", fmt.Errorf("unknown blob key scheme: %q", s)
	}
}

// Mapper converts repository objects to index documents. It has no state
// beyond its configuration and no side effects.
type Mapper struct {
	RepositoryID string
	Scheme       BlobKeyScheme
}

// BlobID returns the document id of the blob at path, indexed under commitSHA.
func (m Mapper) BlobID(commitSHA, path string) string {
	if m.Scheme == BlobKeyByRevision {
		return commitSHA + "_" + path
	}
	return m.RepositoryID + "_" + path
}

// BlobPath recovers the path from a blob document id.
func (m Mapper) BlobPath(id string, body domain.BlobBody) string {
	if m.Scheme == BlobKeyByRevision {
		return strings.TrimPrefix(id, body.CommitSHA+"_")
	}
	return strings.TrimPrefix(id, body.RID+"_")
}

// CommitID returns the document id of a commit.
func (m Mapper) CommitID(sha string) string {
	return m.RepositoryID + "_" + sha
}

// Blob maps normalized blob text to its document.
func (m Mapper) Blob(oid, text, commitSHA string) domain.Document {
	return domain.Document{Blob: &domain.BlobBody{
		Type:      domain.TypeBlob,
		OID:       oid,
		RID:       m.RepositoryID,
		Content:   text,
		CommitSHA: commitSHA,
	}}
}

// Commit maps commit metadata to its document.
func (m Mapper) Commit(c Commit) domain.Document {
	return domain.Document{Commit: &domain.CommitBody{
		Type:      domain.TypeCommit,
		RID:       m.RepositoryID,
		SHA:       c.SHA,
		Author:    signature(c.Author),
		Committer: signature(c.Committer),
		Message:   c.Message,
	}}
}

func signature(s Signature) domain.Signature {
	return domain.Signature{Name: s.Name, Email: s.Email, Time: s.When.UTC()}
}
