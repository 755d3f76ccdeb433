package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of vectors kept in memory when no size is given
const DefaultCacheSize = 10000

// Cache provides in-memory LRU caching of embeddings keyed by content hash and model
type Cache struct {
	mu    sync.Mutex // guards model
	model string
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get returns a copy of the vector cached for text under model
func (c *Cache) Get(text, model string) ([]float32, bool) {
	vec, ok := c.cache.Get(cacheKey(text, model))
	if !ok {
		return nil, false
	}
	return copyVector(vec), true
}

// Put stores a copy of vec for text under model
func (c *Cache) Put(text, model string, vec []float32) {
	c.cache.Add(cacheKey(text, model), copyVector(vec))
}

// Len returns the current cache size
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// Model returns the active embedding model key
func (c *Cache) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel records the active embedding model key. When it differs from the
// previous one the cache is cleared and SetModel reports true.
func (c *Cache) SetModel(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if model == c.model {
		return false
	}
	c.model = model
	c.cache.Purge()
	return true
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cacheKey(text, model string) string {
	return ComputeHash(text) + ":" + model
}

func copyVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
