package gitindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/sha1n/relic-gitindex/internal/domain"
)

// SearchMode selects which document kinds a search covers.
type SearchMode string

const (
	SearchAll     SearchMode = "all"
	SearchCommits SearchMode = "commits"
	SearchBlobs   SearchMode = "blobs"
)

// ParseSearchMode parses a mode name. The empty string selects SearchAll.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchAll:
		return SearchAll, nil
	case SearchCommits, "commit":
		return SearchCommits, nil
	case SearchBlobs, "blob", "code":
		return SearchBlobs, nil
	default:
		return "", fmt.Errorf("unknown search mode: %q", s)
	}
}

// SearchParams are the inputs of a search beyond the query text.
type SearchParams struct {
	Mode SearchMode
	SearchOptions
}

// Searcher runs commit and blob queries against the index and shapes the
// results.
type Searcher struct {
	index  IndexSearcher
	scheme BlobKeyScheme
}

// NewSearcher creates a searcher. scheme must match the one documents were
// indexed with so blob paths can be recovered from ids.
func NewSearcher(index IndexSearcher, scheme BlobKeyScheme) *Searcher {
	return &Searcher{index: index, scheme: scheme}
}

// Search runs the searches selected by params.Mode. The result always has
// both keys; kinds not searched are empty.
func (s *Searcher) Search(ctx context.Context, text string, params SearchParams) (domain.SearchResults, error) {
	results := domain.SearchResults{
		Blobs:   domain.BlobResults{Hits: []domain.BlobHit{}},
		Commits: domain.CommitResults{Hits: []domain.CommitHit{}},
	}

	if params.Mode != SearchBlobs {
		commits, err := s.SearchCommits(ctx, text, params.SearchOptions)
		if err != nil {
			return results, err
		}
		results.Commits = commits
	}

	if params.Mode != SearchCommits && strings.TrimSpace(text) != "" {
		blobs, err := s.SearchBlobs(ctx, text, params.SearchOptions)
		if err != nil {
			return results, err
		}
		results.Blobs = blobs
	}

	return results, nil
}

// SearchCommits runs a commit query.
func (s *Searcher) SearchCommits(ctx context.Context, text string, opts SearchOptions) (domain.CommitResults, error) {
	res, err := s.index.Search(ctx, CommitQuery(text, opts))
	if err != nil {
		return domain.CommitResults{}, fmt.Errorf("commit search failed: %w", err)
	}

	out := domain.CommitResults{Total: res.Total, Hits: make([]domain.CommitHit, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, domain.CommitHit{
			ID:        hit.ID,
			Score:     hit.Score,
			Commit:    commitFromFields(hit.Fields),
			Fragments: fragments(hit),
		})
	}
	return out, nil
}

// SearchBlobs runs a blob content query.
func (s *Searcher) SearchBlobs(ctx context.Context, text string, opts SearchOptions) (domain.BlobResults, error) {
	res, err := s.index.Search(ctx, BlobQuery(text, opts))
	if err != nil {
		return domain.BlobResults{}, fmt.Errorf("blob search failed: %w", err)
	}

	mapper := Mapper{Scheme: s.scheme}
	out := domain.BlobResults{Total: res.Total, Hits: make([]domain.BlobHit, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		body := blobFromFields(hit.Fields)
		out.Hits = append(out.Hits, domain.BlobHit{
			ID:        hit.ID,
			Path:      mapper.BlobPath(hit.ID, body),
			Score:     hit.Score,
			Blob:      body,
			Fragments: fragments(hit),
		})
	}
	return out, nil
}

func blobFromFields(fields map[string]interface{}) domain.BlobBody {
	return domain.BlobBody{
		Type:      stringField(fields, domain.BlobFieldType),
		OID:       stringField(fields, domain.BlobFieldOID),
		RID:       stringField(fields, domain.BlobFieldRID),
		Content:   stringField(fields, domain.BlobFieldContent),
		CommitSHA: stringField(fields, domain.BlobFieldCommitSHA),
	}
}

func commitFromFields(fields map[string]interface{}) domain.CommitBody {
	return domain.CommitBody{
		Type: stringField(fields, domain.CommitFieldType),
		RID:  stringField(fields, domain.CommitFieldRID),
		SHA:  stringField(fields, domain.CommitFieldSHA),
		Author: domain.Signature{
			Name:  stringField(fields, domain.CommitFieldAuthorName),
			Email: stringField(fields, domain.CommitFieldAuthorEmail),
			Time:  timeField(fields, domain.CommitFieldAuthorTime),
		},
		Committer: domain.Signature{
			Name:  stringField(fields, domain.CommitFieldCommitterName),
			Email: stringField(fields, domain.CommitFieldCommitterEmail),
			Time:  timeField(fields, domain.CommitFieldCommitterTime),
		},
		Message: stringField(fields, domain.CommitFieldMessage),
	}
}

func stringField(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// timeField parses a stored datetime, which the index returns as RFC 3339.
func timeField(fields map[string]interface{}, name string) time.Time {
	s := stringField(fields, name)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func fragments(hit *search.DocumentMatch) map[string][]string {
	if len(hit.Fragments) == 0 {
		return nil
	}
	return map[string][]string(hit.Fragments)
}
