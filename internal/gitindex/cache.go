package gitindex

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of normalization outcomes kept in memory.
const DefaultCacheSize = 4096

type normalized struct {
	text      string
	indexable bool
}

// CachingNormalizer memoizes normalization by blob oid. Blobs are content
// addressed, so the same oid always normalizes to the same text no matter
// which path or revision it is reached through.
type CachingNormalizer struct {
	inner ContentNormalizer
	cache *lru.Cache[string, normalized]
}

// NewCachingNormalizer wraps inner with an LRU of the given size.
func NewCachingNormalizer(inner ContentNormalizer, size int) (*CachingNormalizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, normalized](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalization cache: %w", err)
	}
	return &CachingNormalizer{inner: inner, cache: cache}, nil
}

// NormalizeBlob normalizes content, reusing a previous outcome for oid.
func (c *CachingNormalizer) NormalizeBlob(oid string, content []byte) (string, bool) {
	if oid != "" {
		if hit, ok := c.cache.Get(oid); ok {
			return hit.text, hit.indexable
		}
	}

	text, indexable := c.inner.Normalize(content)
	if oid != "" {
		c.cache.Add(oid, normalized{text: text, indexable: indexable})
	}
	return text, indexable
}

// Len returns the number of cached outcomes.
func (c *CachingNormalizer) Len() int {
	return c.cache.Len()
}
