// Package dedupe tracks game submission ids so a retried submission is
// applied at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Deduper records submission ids.
type Deduper interface {
	// Claim records id and reports whether it was already present.
	// Only the caller that gets false may apply the submission.
	Claim(ctx context.Context, id string) bool

	// Release forgets id so the submission can be retried. Used when a
	// claimed submission was rejected or never applied.
	Release(ctx context.Context, id string)

	// Seed records ids already present in the ledger, oldest first.
	Seed(ctx context.Context, ids ...string)

	// Contains reports whether id is recorded without claiming it.
	Contains(ctx context.Context, id string) bool

	Size() int
}

// inMemoryDeduper keeps ids in insertion order. When bounded, the oldest id
// is evicted first; the ledger itself stays authoritative for evicted ids.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int // <= 0 means unbounded
}

// NewInMemoryDeduper creates a deduper. The default bound is 50000 ids.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.add(id)
	return false
}

func (d *inMemoryDeduper) Release(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

func (d *inMemoryDeduper) Seed(_ context.Context, ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := d.seen[id]; !ok {
			d.add(id)
		}
	}
}

func (d *inMemoryDeduper) Contains(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// add must be called with d.mu held.
func (d *inMemoryDeduper) add(id string) {
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			d.order.Remove(oldest)
			delete(d.seen, oldest.Value.(string))
		}
	}
	d.seen[id] = d.order.PushBack(id)
}
