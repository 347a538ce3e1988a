package market

import (
	"sync"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// PriceCache holds the latest top of book for every pair. The feed is the
// single writer; readers take snapshots.
//
// Snapshots are copy-on-write: Snapshot hands out the current map and the
// next Update clones it before writing, so an outstanding snapshot is never
// mutated and repeated snapshots between updates share one map.
type PriceCache struct {
	mu      sync.Mutex
	books   map[string]domain.PriceBook
	shared  bool
	updates uint64
}

// NewPriceCache returns an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{books: make(map[string]domain.PriceBook)}
}

// Update replaces all four figures of a pair's book at once.
func (c *PriceCache) Update(u domain.PriceUpdate) {
	c.mu.Lock()
	if c.shared {
		next := make(map[string]domain.PriceBook, len(c.books)+1)
		for k, v := range c.books {
			next[k] = v
		}
		c.books = next
		c.shared = false
	}
	c.books[u.Symbol] = u.Book
	c.updates++
	c.mu.Unlock()
}

// Get returns the current book for a symbol.
func (c *PriceCache) Get(symbol string) (domain.PriceBook, bool) {
	c.mu.Lock()
	b, ok := c.books[symbol]
	c.mu.Unlock()
	return b, ok
}

// Snapshot returns an immutable point-in-time view of every book.
func (c *PriceCache) Snapshot() domain.PriceSnapshot {
	c.mu.Lock()
	c.shared = true
	snap := c.books
	c.mu.Unlock()
	return domain.PriceSnapshot(snap)
}

// Len returns the number of pairs with a book.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	n := len(c.books)
	c.mu.Unlock()
	return n
}

// Updates returns the total number of updates applied.
func (c *PriceCache) Updates() uint64 {
	c.mu.Lock()
	n := c.updates
	c.mu.Unlock()
	return n
}
