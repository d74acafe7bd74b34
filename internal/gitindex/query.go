package gitindex

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/relic-gitindex/internal/domain"
)

// DefaultPerPage is the page size used when none is given.
const DefaultPerPage = 20

// FieldBoost is a searchable field and its relative weight. Analyzer, when
// set, replaces the field's own analyzer for the query text.
type FieldBoost struct {
	Field    string
	Boost    float64
	Analyzer string
}

// CommitSearchFields are the commit fields matched by free text, heaviest first.
var CommitSearchFields = []FieldBoost{
	{Field: domain.CommitFieldMessage, Boost: 10},
	{Field: domain.CommitFieldSHA, Boost: 5, Analyzer: SHAQueryAnalyzer},
	{Field: domain.CommitFieldAuthorName, Boost: 2},
	{Field: domain.CommitFieldAuthorEmail, Boost: 2},
	{Field: domain.CommitFieldCommitterName, Boost: 1},
	{Field: domain.CommitFieldCommitterEmail, Boost: 1},
}

// SearchOptions shape a search request.
type SearchOptions struct {
	// Page is 1-indexed; values below 1 select the first page.
	Page int
	// Per is the page size; values below 1 select DefaultPerPage.
	Per int
	// Highlight lists the fields to return highlighted fragments for.
	// Nothing is highlighted by default.
	Highlight []string
	// RepositoryID restricts results to one repository when set.
	RepositoryID string
}

// Offset returns the number of hits skipped before the requested page.
func (o SearchOptions) Offset() int {
	return o.Limit() * (o.page() - 1)
}

// Limit returns the page size.
func (o SearchOptions) Limit() int {
	if o.Per < 1 {
		return DefaultPerPage
	}
	return o.Per
}

func (o SearchOptions) page() int {
	if o.Page < 1 {
		return 1
	}
	return o.Page
}

// CommitQuery builds a commit search. Every term must appear in a field for
// that field to match; fields are weighted per CommitSearchFields. Blank text
// matches every commit with a constant score, ordered by id.
func CommitQuery(text string, opts SearchOptions) *bleve.SearchRequest {
	var q query.Query
	blank := strings.TrimSpace(text) == ""
	if blank {
		q = bleve.NewMatchAllQuery()
	} else {
		disjuncts := make([]query.Query, 0, len(CommitSearchFields))
		for _, f := range CommitSearchFields {
			mq := matchAll(text, f.Field, f.Boost)
			mq.Analyzer = f.Analyzer
			disjuncts = append(disjuncts, mq)
		}
		q = bleve.NewDisjunctionQuery(disjuncts...)
	}

	req := newRequest(scoped(q, domain.CommitFieldType, domain.TypeCommit, domain.CommitFieldRID, opts.RepositoryID), opts)
	if blank {
		req.SortBy([]string{"_id"})
	}
	return req
}

// BlobQuery builds a content search requiring every term to appear in the
// blob content.
func BlobQuery(text string, opts SearchOptions) *bleve.SearchRequest {
	q := matchAll(text, domain.BlobFieldContent, 1)
	return newRequest(scoped(q, domain.BlobFieldType, domain.TypeBlob, domain.BlobFieldRID, opts.RepositoryID), opts)
}

func matchAll(text, field string, boost float64) *query.MatchQuery {
	q := bleve.NewMatchQuery(text)
	q.SetField(field)
	q.SetOperator(query.MatchQueryOperatorAnd)
	q.SetBoost(boost)
	return q
}

// scoped restricts q to one document type and, optionally, one repository.
// Filter clauses carry no weight so they do not disturb relevance.
func scoped(q query.Query, typeField, typeName, ridField, rid string) query.Query {
	typeFilter := bleve.NewTermQuery(typeName)
	typeFilter.SetField(typeField)
	typeFilter.SetBoost(0)

	must := []query.Query{q, typeFilter}
	if rid != "" {
		ridFilter := bleve.NewTermQuery(rid)
		ridFilter.SetField(ridField)
		ridFilter.SetBoost(0)
		must = append(must, ridFilter)
	}
	return bleve.NewConjunctionQuery(must...)
}

func newRequest(q query.Query, opts SearchOptions) *bleve.SearchRequest {
	req := bleve.NewSearchRequestOptions(q, opts.Limit(), opts.Offset(), false)
	req.Fields = []string{"*"}
	if len(opts.Highlight) > 0 {
		req.Highlight = bleve.NewHighlight()
		for _, f := range opts.Highlight {
			req.Highlight.AddField(f)
		}
	}
	return req
}
