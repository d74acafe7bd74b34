package domain

import "time"

// Document types, also used as the value of the "type" field in every body.
const (
	TypeBlob   = "blob"
	TypeCommit = "commit"
)

// Document is the unit written to the search index. Exactly one of Blob or
// Commit is set; the wrapping key ("blob" or "commit") is part of the wire
// shape, so every field path is prefixed with it.
type Document struct {
	Blob   *BlobBody   `json:"blob,omitempty"`
	Commit *CommitBody `json:"commit,omitempty"`
}

// Type reports the document type. Bleve uses it to pick the type mapping.
func (d Document) Type() string {
	if d.Commit != nil {
		return TypeCommit
	}
	return TypeBlob
}

// BlobBody is the text content of one file at one path, as of the revision
// under which it was last indexed.
type BlobBody struct {
	Type string `json:"type"`

	// OID is the content hash of the blob in the object database.
	OID string `json:"oid"`

	// RID is the repository identity.
	RID string `json:"rid"`

	// Content is the normalized UTF-8 text.
	Content string `json:"content"`

	// CommitSHA is the revision of the indexing pass that last wrote this
	// document, not necessarily the commit that introduced the content.
	CommitSHA string `json:"commit_sha"`
}

// Signature identifies the author or committer of a commit.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Time  time.Time `json:"time"`
}

// CommitBody is the immutable metadata of one commit.
type CommitBody struct {
	Type      string    `json:"type"`
	RID       string    `json:"rid"`
	SHA       string    `json:"sha"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
	Message   string    `json:"message"`
}

// Field paths as seen by the index. Mapping and query construction must use
// these so the two never drift apart.
const (
	BlobFieldType      = "blob.type"
	BlobFieldOID       = "blob.oid"
	BlobFieldRID       = "blob.rid"
	BlobFieldContent   = "blob.content"
	BlobFieldCommitSHA = "blob.commit_sha"

	CommitFieldType           = "commit.type"
	CommitFieldRID            = "commit.rid"
	CommitFieldSHA            = "commit.sha"
	CommitFieldMessage        = "commit.message"
	CommitFieldAuthorName     = "commit.author.name"
	CommitFieldAuthorEmail    = "commit.author.email"
	CommitFieldAuthorTime     = "commit.author.time"
	CommitFieldCommitterName  = "commit.committer.name"
	CommitFieldCommitterEmail = "commit.committer.email"
	CommitFieldCommitterTime  = "commit.committer.time"
)

// BlobHit is a blob search result.
type BlobHit struct {
	ID        string              `json:"id"`
	Path      string              `json:"path"`
	Score     float64             `json:"score"`
	Blob      BlobBody            `json:"blob"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// CommitHit is a commit search result.
type CommitHit struct {
	ID        string              `json:"id"`
	Score     float64             `json:"score"`
	Commit    CommitBody          `json:"commit"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// BlobResults is one page of blob hits.
type BlobResults struct {
	Total uint64    `json:"total"`
	Hits  []BlobHit `json:"hits"`
}

// CommitResults is one page of commit hits.
type CommitResults struct {
	Total uint64      `json:"total"`
	Hits  []CommitHit `json:"hits"`
}

// SearchResults has the same shape whichever sub-searches ran; a search
// restricted to one kind leaves the other empty.
type SearchResults struct {
	Blobs   BlobResults   `json:"blobs"`
	Commits CommitResults `json:"commits"`
}
