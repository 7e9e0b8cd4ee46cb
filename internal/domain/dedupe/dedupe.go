// Package dedupe maps submission idempotency keys to the tournament they started.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper remembers which job an idempotency key created.
type Deduper interface {
	// Claim records key -> id unless key is already known. It returns the id
	// owning the key and whether it was already known. Claim is atomic.
	Claim(ctx context.Context, key, id string) (owner string, seen bool)

	// Release forgets key so it can be claimed again, e.g. after the job
	// was rejected by a full queue.
	Release(ctx context.Context, key string)

	// Size returns the number of remembered keys.
	Size() int64
}

type entry struct {
	key string
	id  string
}

// inMemoryDeduper keeps keys in a map plus an insertion-ordered list for eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		byKey:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Claim implements Deduper.Claim.
func (d *inMemoryDeduper) Claim(_ context.Context, key, id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		return el.Value.(*entry).id, true
	}
	if d.maxSize > 0 {
		for d.order.Len() >= d.maxSize {
			d.evictOldest()
		}
	}
	d.byKey[key] = d.order.PushBack(&entry{key: key, id: id})
	return id, false
}

// Release implements Deduper.Release.
func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		d.order.Remove(el)
		delete(d.byKey, key)
	}
}

// Size implements Deduper.Size.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}

func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.byKey, front.Value.(*entry).key)
}
