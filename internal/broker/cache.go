package broker

import (
	"sync"
	"time"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// MetadataCache is the TTL-cached symbol-info store of §4.7. It is a
// read-mostly shared structure guarded by reader-writer synchronization
// (§5 shared resource policy). Spread values are deliberately not cached
// here (§4.12/§4.13) — they travel through the Orchestrator's separate
// spread map instead.
type MetadataCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]types.SymbolMetadata
	now     func() time.Time
}

// NewMetadataCache builds a cache with the given freshness window.
func NewMetadataCache(ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		ttl:     ttl,
		entries: make(map[string]types.SymbolMetadata),
		now:     time.Now,
	}
}

// Get returns the cached entry for symbol if present and fresh.
func (c *MetadataCache) Get(symbol string) (types.SymbolMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[symbol]
	if !ok || m.Stale(c.ttl, c.now()) {
		return types.SymbolMetadata{}, false
	}
	return m, true
}

// Put stores a freshly fetched entry, stamping FetchedAt to now.
func (c *MetadataCache) Put(m types.SymbolMetadata) {
	m.FetchedAt = c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.Symbol] = m
}

// Invalidate clears a single entry (§4.7 invalidate_cache).
func (c *MetadataCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
}

// InvalidateAll clears every entry, used after a reconnect (§4.7
// reconnection: "the symbol-metadata cache is invalidated").
func (c *MetadataCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]types.SymbolMetadata)
}
