package reconcile

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sells-group/deal-engine/internal/model"
)

// Cache stores reconciliation results for the lifetime of a run.
type Cache interface {
	Get(key string) (*model.ReconciliationResult, bool)
	Put(key string, r *model.ReconciliationResult)
}

// MemoryCache is a concurrency-safe in-process Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]*model.ReconciliationResult
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]*model.ReconciliationResult)}
}

// Get implements Cache.
func (c *MemoryCache) Get(key string) (*model.ReconciliationResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.m[key]
	return r, ok
}

// Put implements Cache.
func (c *MemoryCache) Put(key string, r *model.ReconciliationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
}

// Len returns the number of cached results.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// CacheKey returns the SHA-256 hex of the normalized address and the sorted
// declared values, so a changed declaration misses the cache.
func CacheKey(address string, declared map[string]float64) string {
	keys := make([]string, 0, len(declared))
	for k := range declared {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(strings.ToLower(address)), " "))
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(declared[k], 'g', -1, 64))
	}
	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}
