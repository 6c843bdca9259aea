package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

const DefaultTTL = 5 * time.Second

// Entry is the last known-good quote for a symbol and when it was stored.
type Entry struct {
	Quote    models.Quote
	StoredAt time.Time
}

// SnapshotCache keeps at most one entry per symbol. Entries are only ever overwritten
// or dropped all at once by Clear; memory is bounded by the symbol universe.
type SnapshotCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
}

type Option func(*SnapshotCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) { c.now = now }
}

func New(ttl time.Duration, opts ...Option) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &SnapshotCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SnapshotCache) TTL() time.Duration { return c.ttl }

// Get returns the entry for symbol. fresh is true while now-StoredAt < TTL.
func (c *SnapshotCache) Get(symbol string) (entry Entry, fresh bool, ok bool) {
	c.mu.RLock()
	entry, ok = c.entries[symbol]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false, false
	}
	return entry, c.isFresh(entry, c.now()), true
}

// Put stores q as the symbol's entry, replacing whatever was there.
// Quotes that fail validation and synthetic placeholders are refused.
func (c *SnapshotCache) Put(q models.Quote) error {
	return c.store(q, c.now())
}

// Restore seeds an entry with an explicit store time, used when warming the cache from
// an external snapshot so that old data is treated as stale rather than fresh.
func (c *SnapshotCache) Restore(q models.Quote, storedAt time.Time) error {
	return c.store(q, storedAt)
}

func (c *SnapshotCache) store(q models.Quote, at time.Time) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.Synthetic {
		return ErrSynthetic
	}

	c.mu.Lock()
	c.entries[q.Symbol] = Entry{Quote: q, StoredAt: at}
	c.mu.Unlock()
	return nil
}

// SnapshotAll returns every fresh entry, ordered by symbol.
func (c *SnapshotCache) SnapshotAll() []Entry {
	now := c.now()

	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if c.isFresh(e, now) {
			out = append(out, e)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Quote.Symbol < out[j].Quote.Symbol })
	return out
}

func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry. Only used on shutdown.
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

func (c *SnapshotCache) isFresh(e Entry, now time.Time) bool {
	return now.Sub(e.StoredAt) < c.ttl
}
