// Package inmemory is the default response-cache backend: a thread-safe,
// in-process LRU with lazy TTL expiration. It registers itself under the
// name "inmemory" in the cache registry, grounded on the teacher's
// cache/providers/inmemory/inmemory.go (doubly-linked list + map for O(1)
// get/set/evict).
package inmemory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/cache"
)

func init() {
	cache.Register("inmemory", func(cfg cache.Config) (cache.Backend, error) {
		return New(cfg), nil
	})
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time // zero means no expiration
}

// Backend is a bounded, TTL-aware LRU cache. It satisfies cache.Backend.
type Backend struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
}

// New builds a Backend from cfg. A zero MaxSize means the cache grows
// without bound.
func New(cfg cache.Config) *Backend {
	return &Backend{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		defaultTTL: cfg.TTL,
		maxSize:    cfg.MaxSize,
		now:        time.Now,
	}
}

func (b *Backend) Get(_ context.Context, key string) (any, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	e := elem.Value.(*entry)

	if !e.expiresAt.IsZero() && b.now().After(e.expiresAt) {
		b.removeLocked(elem)
		return nil, false, nil
	}

	b.order.MoveToFront(elem)
	return e.value, true, nil
}

func (b *Backend) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiresAt := b.expiryFor(ttl)

	if elem, ok := b.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		b.order.MoveToFront(elem)
		return nil
	}

	elem := b.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	b.items[key] = elem

	if b.maxSize > 0 && b.order.Len() > b.maxSize {
		b.evictLocked()
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if elem, ok := b.items[key]; ok {
		b.removeLocked(elem)
	}
	return nil
}

func (b *Backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]*list.Element)
	b.order.Init()
	return nil
}

// Len reports the current entry count, including ones not yet lazily
// expired.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

func (b *Backend) expiryFor(ttl time.Duration) time.Time {
	if ttl < 0 {
		return time.Time{}
	}
	if ttl == 0 {
		ttl = b.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return b.now().Add(ttl)
}

func (b *Backend) evictLocked() {
	if back := b.order.Back(); back != nil {
		b.removeLocked(back)
	}
}

func (b *Backend) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(b.items, e.key)
	b.order.Remove(elem)
}
