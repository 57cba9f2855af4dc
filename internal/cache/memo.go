// Package cache memoises expensive computations with a TTL and a bound on
// the number of live entries. Concurrent callers asking for the same key
// while it is being computed share a single computation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value   V
	expires time.Time
	created time.Time
}

// Memo is a TTL memo keyed by comparable keys.
type Memo[K comparable, V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[K]entry[V]
	gen     uint64

	group singleflight.Group
}

// NewMemo returns a memo whose entries live for ttl. When maxEntries is
// reached the oldest entry is evicted; maxEntries <= 0 means one entry.
func NewMemo[K comparable, V any](ttl time.Duration, maxEntries int) *Memo[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Memo[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[K]entry[V]),
	}
}

// Get returns the live value for key, computing it with load on a miss.
// Errors are not cached. The computation outlives a cancelled caller so
// that other callers waiting on it still get the result.
func (m *Memo[K, V]) Get(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := m.Peek(key); ok {
		return v, nil
	}

	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	flightKey := fmt.Sprintf("%d/%v", gen, key)
	ch := m.group.DoChan(flightKey, func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		m.store(key, v, gen)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the live value for key without computing it.
func (m *Memo[K, V]) Peek(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *Memo[K, V]) store(key K, v V, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// An Invalidate during the computation discards its result.
	if gen != m.gen {
		return
	}

	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	for len(m.entries) >= m.maxEntries {
		var oldest K
		var oldestAt time.Time
		first := true
		for k, e := range m.entries {
			if first || e.created.Before(oldestAt) {
				oldest, oldestAt, first = k, e.created, false
			}
		}
		delete(m.entries, oldest)
	}
	m.entries[key] = entry[V]{value: v, created: now, expires: now.Add(m.ttl)}
}

// Invalidate drops key.
func (m *Memo[K, V]) Invalidate(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.gen++
}

// Clear drops every entry.
func (m *Memo[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[K]entry[V])
	m.gen++
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (m *Memo[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
