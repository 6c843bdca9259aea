package stream

import (
	"sync"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

// DefaultBufferSize is how many recent ticks a stream keeps.
const DefaultBufferSize = 100

type tickKey struct {
	symbol string
	ts     int64
}

// TickBuffer holds the most recent ticks, newest first. A tick already present with the
// same symbol and timestamp is ignored.
type TickBuffer struct {
	mu    sync.RWMutex
	items []models.Quote
	size  int
}

func NewTickBuffer(size int) *TickBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &TickBuffer{items: make([]models.Quote, 0, size), size: size}
}

// Add prepends q and drops the oldest entries beyond capacity. It reports whether q
// was new.
func (b *TickBuffer) Add(q models.Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := tickKey{q.Symbol, q.Timestamp}
	for _, existing := range b.items {
		if (tickKey{existing.Symbol, existing.Timestamp}) == key {
			return false
		}
	}

	if len(b.items) < b.size {
		b.items = append(b.items, models.Quote{})
	}
	copy(b.items[1:], b.items[:len(b.items)-1])
	b.items[0] = q
	return true
}

// Items returns a copy, newest first.
func (b *TickBuffer) Items() []models.Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Quote(nil), b.items...)
}

// Latest returns the newest tick per symbol.
func (b *TickBuffer) Latest() map[string]models.Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]models.Quote)
	for _, q := range b.items {
		if _, ok := out[q.Symbol]; !ok {
			out[q.Symbol] = q
		}
	}
	return out
}

func (b *TickBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *TickBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}
