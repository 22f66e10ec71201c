// Package dedupe remembers which timer firings were already turned into
// finish tasks, so a duplicate firing is dropped before it reaches a worker.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper records seen tokens for at-most-once task submission.
type Deduper interface {
	// SeenAndRecord reports whether token was already recorded, recording it if not.
	SeenAndRecord(ctx context.Context, token string) bool

	// Unrecord forgets token so it can be submitted again, e.g. after the
	// queue refused the task.
	Unrecord(ctx context.Context, token string)

	Size() int64
}

// inMemoryDeduper keeps up to maxSize tokens and evicts the oldest first.
// maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, token string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[token]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[token] = d.order.PushBack(token)
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[token]; ok {
		d.order.Remove(el)
		delete(d.seen, token)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
