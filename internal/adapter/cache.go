package adapter

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder wraps an Embedder with an in-process ristretto cache.
// Embedding is deterministic for a fixed text, so caching by text is sound;
// repeated upserts and recurring queries skip the network entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with a cache bounded to roughly maxBytes of
// stored vectors (64 MiB when maxBytes <= 0).
func NewCachedEmbedder(inner Embedder, maxBytes int64) (*CachedEmbedder, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("adapter: embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Collect cache misses, preserving input order.
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			if vec, ok := v.([]float32); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("adapter: embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		c.cache.Set(missing[j], vec, int64(len(vec)*4))
	}
	return out, nil
}

// Close releases the cache's background goroutines.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
