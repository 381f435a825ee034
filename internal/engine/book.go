package engine

import (
	"sort"
	"sync"
)

// Book is the shared store of open positions. All mutations go through its
// mutex so that concurrent cycles cannot both pass the capacity check and
// open past the limit. Network calls must never run while holding it.
type Book struct {
	mu        sync.Mutex
	limit     int
	positions map[string]*Position
}

// NewBook creates a position book with the given concurrency limit.
func NewBook(limit int) *Book {
	if limit < 1 {
		limit = 1
	}
	return &Book{
		limit:     limit,
		positions: make(map[string]*Position),
	}
}

// Reserve registers an open position, failing with ErrNoCapacity when the
// concurrency limit is already reached. The capacity check and the insert
// are one critical section.
func (b *Book) Reserve(p *Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.positions) >= b.limit {
		return ErrNoCapacity
	}
	b.positions[p.ID] = p
	return nil
}

// Release removes a position from the book, freeing its slot.
func (b *Book) Release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, id)
}

// Get returns the open position with the given id, or nil.
func (b *Book) Get(id string) *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[id]
}

// Count returns the number of open positions.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

// Limit returns the configured concurrency limit.
func (b *Book) Limit() int {
	return b.limit
}

// Open returns the open positions ordered by id for deterministic iteration.
func (b *Book) Open() []*Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
