// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"strings"
	"sync"
)

// Cache memoizes embeddings by (task type, normalized text). Entries are
// write-once-per-key, read-many, with no eviction. Concurrent writers for
// the same key each compute their own value independently; last write
// wins, which is harmless because values for one key are interchangeable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]float64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]float64)}
}

// Key builds the cache key from task type and normalized text.
func Key(task TaskType, text string) string {
	return string(task) + ":" + normalize(text)
}

// normalize lower-cases and collapses whitespace so trivially different
// renderings of the same text share a cache entry.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Get returns the cached vector for the key, or nil on a miss. A miss is
// not an error.
func (c *Cache) Get(task TaskType, text string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[Key(task, text)]
}

// Put stores a vector under the key.
func (c *Cache) Put(task TaskType, text string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(task, text)] = vec
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cached wraps an Embedder with cache lookups.
type Cached struct {
	Inner Embedder
	Cache *Cache
}

// Embed returns the cached vector when present, otherwise computes and
// stores it.
func (c *Cached) Embed(ctx context.Context, text string, task TaskType) ([]float64, error) {
	if vec := c.Cache.Get(task, text); vec != nil {
		return vec, nil
	}
	vec, err := c.Inner.Embed(ctx, text, task)
	if err != nil {
		return nil, err
	}
	c.Cache.Put(task, text, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and forwards only the misses to the
// inner embedder.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float64, error) {
	out := make([][]float64, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec := c.Cache.Get(task, text); vec != nil {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.Inner.EmbedBatch(ctx, missTexts, task)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.Cache.Put(task, missTexts[j], vec)
	}
	return out, nil
}
