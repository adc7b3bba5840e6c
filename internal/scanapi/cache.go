package scanapi

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/csheth/medscan/internal/media"
)

// CachingAnalyzer memoizes successful analyses by image digest, so resubmitting
// the same picture does not hit the service again. Failures are not cached.
type CachingAnalyzer struct {
	next  Analyzer
	cache *lru.Cache[string, AnalysisResult]
}

// NewCachingAnalyzer wraps next with an LRU of the given size. A size of zero
// or less returns next unchanged.
func NewCachingAnalyzer(next Analyzer, size int) (Analyzer, error) {
	if size <= 0 {
		return next, nil
	}
	cache, err := lru.New[string, AnalysisResult](size)
	if err != nil {
		return nil, err
	}
	return &CachingAnalyzer{next: next, cache: cache}, nil
}

func (c *CachingAnalyzer) Analyze(ctx context.Context, img media.Image) (AnalysisResult, error) {
	key := img.Digest()
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}
	result, err := c.next.Analyze(ctx, img)
	if err != nil {
		return AnalysisResult{}, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// Len reports the number of cached analyses.
func (c *CachingAnalyzer) Len() int {
	return c.cache.Len()
}

// Purge drops every cached analysis.
func (c *CachingAnalyzer) Purge() {
	c.cache.Purge()
}
