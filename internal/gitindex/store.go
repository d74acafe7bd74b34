package gitindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/relic-gitindex/internal/domain"
)

// IndexDirName is the directory name of the shared index under the base dir.
const IndexDirName = "index.bleve"

// Commit shas are indexed as every lowercase prefix of at least
// MinSHAPrefix characters, so abbreviated shas find their commit.
const (
	SHAAnalyzer      = "sha"
	SHAQueryAnalyzer = "sha_query"
	MinSHAPrefix     = 5
	MaxSHAPrefix     = 40

	shaPrefixFilter = "sha_prefix"
)

// MutationOp is the kind of an index mutation.
type MutationOp int

const (
	OpUpsert MutationOp = iota
	OpDelete
)

func (op MutationOp) String() string {
	if op == OpDelete {
		return "delete"
	}
	return "upsert"
}

// Mutation is a single, independently idempotent index command.
type Mutation struct {
	Op  MutationOp
	ID  string
	Doc domain.Document
}

// IndexWriter applies mutations to the document store. Mutations are applied
// in slice order; a later mutation of the same id wins. Deleting an id that
// is not in the store succeeds.
type IndexWriter interface {
	Apply(ctx context.Context, mutations []Mutation) error
}

// IndexSearcher executes search requests against the document store.
type IndexSearcher interface {
	Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

// BleveIndex is the bleve-backed document store shared by all repositories.
type BleveIndex struct {
	index bleve.Index
}

// OpenBleveIndex opens the index at path, creating it if it does not exist.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	index, err := bleve.Open(path)
	if err == nil {
		return &BleveIndex{index: index}, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	indexMapping, err := CreateIndexMapping()
	if err != nil {
		return nil, err
	}
	index, err = bleve.New(path, indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemBleveIndex creates an in-memory index.
func NewMemBleveIndex() (*BleveIndex, error) {
	indexMapping, err := CreateIndexMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// CreateIndexMapping creates the mapping for blob and commit documents.
func CreateIndexMapping() (mapping.IndexMapping, error) {
	blobBody := bleve.NewDocumentMapping()
	blobBody.AddFieldMappingsAt("type", keywordField())
	blobBody.AddFieldMappingsAt("oid", keywordField())
	blobBody.AddFieldMappingsAt("rid", keywordField())
	blobBody.AddFieldMappingsAt("commit_sha", keywordField())
	blobBody.AddFieldMappingsAt("content", textField())

	blobDoc := bleve.NewDocumentMapping()
	blobDoc.AddSubDocumentMapping(domain.TypeBlob, blobBody)

	commitBody := bleve.NewDocumentMapping()
	commitBody.AddFieldMappingsAt("type", keywordField())
	commitBody.AddFieldMappingsAt("rid", keywordField())
	commitBody.AddFieldMappingsAt("sha", shaField())
	commitBody.AddFieldMappingsAt("message", textField())
	commitBody.AddSubDocumentMapping("author", signatureMapping())
	commitBody.AddSubDocumentMapping("committer", signatureMapping())

	commitDoc := bleve.NewDocumentMapping()
	commitDoc.AddSubDocumentMapping(domain.TypeCommit, commitBody)

	indexMapping := bleve.NewIndexMapping()
	if err := addSHAAnalyzers(indexMapping); err != nil {
		return nil, fmt.Errorf("failed to register sha analyzers: %w", err)
	}
	indexMapping.AddDocumentMapping(domain.TypeBlob, blobDoc)
	indexMapping.AddDocumentMapping(domain.TypeCommit, commitDoc)
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping, nil
}

func signatureMapping() *mapping.DocumentMapping {
	m := bleve.NewDocumentMapping()
	m.AddFieldMappingsAt("name", textField())
	m.AddFieldMappingsAt("email", textField())

	when := bleve.NewDateTimeFieldMapping()
	when.Store = true
	m.AddFieldMappingsAt("time", when)
	return m
}

// keywordField is stored and matched as a single exact term.
func keywordField() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = keyword.Name
	f.Store = true
	return f
}

// shaField stores the full sha and indexes its prefixes.
func shaField() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = SHAAnalyzer
	f.Store = true
	return f
}

func addSHAAnalyzers(m *mapping.IndexMappingImpl) error {
	err := m.AddCustomTokenFilter(shaPrefixFilter, map[string]interface{}{
		"type": edgengram.Name,
		"back": false,
		"min":  float64(MinSHAPrefix),
		"max":  float64(MaxSHAPrefix),
	})
	if err != nil {
		return err
	}
	err = m.AddCustomAnalyzer(SHAAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name, shaPrefixFilter},
	})
	if err != nil {
		return err
	}
	return m.AddCustomAnalyzer(SHAQueryAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
}

// textField is analyzed for full-text search and keeps term vectors so hits
// can be highlighted.
func textField() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = standard.Name
	f.Store = true
	f.IncludeTermVectors = true
	return f
}

// Apply implements IndexWriter.
func (b *BleveIndex) Apply(ctx context.Context, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := b.index.NewBatch()
	for _, m := range mutations {
		switch m.Op {
		case OpDelete:
			batch.Delete(m.ID)
		default:
			if err := batch.Index(m.ID, m.Doc); err != nil {
				return fmt.Errorf("failed to add %s to batch: %w", m.ID, err)
			}
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	return nil
}

// Search implements IndexSearcher.
func (b *BleveIndex) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return b.index.SearchInContext(ctx, req)
}

// RepositoryCounts returns the number of blob and commit documents indexed
// under rid.
func (b *BleveIndex) RepositoryCounts(ctx context.Context, rid string) (blobs, commits uint64, err error) {
	blobs, err = b.count(ctx, repositoryQuery(domain.BlobFieldRID, rid))
	if err != nil {
		return 0, 0, err
	}
	commits, err = b.count(ctx, repositoryQuery(domain.CommitFieldRID, rid))
	if err != nil {
		return 0, 0, err
	}
	return blobs, commits, nil
}

// DeleteRepository removes every document indexed under rid and returns how
// many were removed. With blobsOnly set, commit documents are kept.
func (b *BleveIndex) DeleteRepository(ctx context.Context, rid string, blobsOnly bool) (int, error) {
	var q query.Query = repositoryQuery(domain.BlobFieldRID, rid)
	if !blobsOnly {
		q = bleve.NewDisjunctionQuery(q, repositoryQuery(domain.CommitFieldRID, rid))
	}

	deleted := 0
	for {
		req := bleve.NewSearchRequestOptions(q, MaxBatchSize, 0, false)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return deleted, fmt.Errorf("failed to list documents of %s: %w", rid, err)
		}
		if len(res.Hits) == 0 {
			return deleted, nil
		}

		mutations := make([]Mutation, 0, len(res.Hits))
		for _, hit := range res.Hits {
			mutations = append(mutations, Mutation{Op: OpDelete, ID: hit.ID})
		}
		if err := b.Apply(ctx, mutations); err != nil {
			return deleted, err
		}
		deleted += len(mutations)
	}
}

func (b *BleveIndex) count(ctx context.Context, q query.Query) (uint64, error) {
	res, err := b.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, 0, 0, false))
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return res.Total, nil
}

func repositoryQuery(field, rid string) *query.TermQuery {
	q := bleve.NewTermQuery(rid)
	q.SetField(field)
	return q
}

// DocCount returns the number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
