package fees

import (
	"context"
	"sync"
)

// Cache is the run-scoped code to fees mapping shared by concurrent lookup tasks.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Fees
}

// NewCache creates a cache seeded with previously persisted entries.
func NewCache(seed map[string]Fees) *Cache {
	entries := make(map[string]Fees, len(seed))
	for code, f := range seed {
		entries[code] = f
	}
	return &Cache{entries: entries}
}

func (c *Cache) Get(code string) (Fees, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[code]
	return f, ok
}

func (c *Cache) Set(code string, f Fees) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = f
}

// Missing returns the codes without an entry, preserving input order.
func (c *Cache) Missing(codes []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, code := range codes {
		if _, ok := c.entries[code]; !ok {
			out = append(out, code)
		}
	}
	return out
}

// Lookup returns the cached fees for code, consulting src on a miss.
// A transport error yields Unknown without caching so the next run tries again.
func (c *Cache) Lookup(ctx context.Context, src Source, code string) (Fees, error) {
	if f, ok := c.Get(code); ok {
		return f, nil
	}
	f, err := src.LookupFees(ctx, code)
	if err != nil {
		return Unknown, err
	}
	c.Set(code, f)
	return f, nil
}

// FeesOrUnknown returns the cached fees or Unknown.
func (c *Cache) FeesOrUnknown(code string) Fees {
	if f, ok := c.Get(code); ok {
		return f
	}
	return Unknown
}

// Snapshot copies the current entries.
func (c *Cache) Snapshot() map[string]Fees {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Fees, len(c.entries))
	for code, f := range c.entries {
		out[code] = f
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
