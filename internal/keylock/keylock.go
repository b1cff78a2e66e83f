// Package keylock provides mutual exclusion per activity id. Entries are
// reference counted and removed once no goroutine holds or waits for them,
// so the table only grows with the number of ids under contention.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Table is a set of mutexes keyed by id. The zero value is not usable; call New.
type Table struct {
	mu      sync.Mutex
	entries map[uint64]*entry
}

func New() *Table {
	return &Table{entries: make(map[uint64]*entry)}
}

// Lock blocks until the key is free or ctx is done. The returned func
// releases the key and is safe to call more than once.
func (t *Table) Lock(ctx context.Context, key uint64) (func(), error) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		t.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			t.drop(key, e)
		})
	}, nil
}

func (t *Table) drop(key uint64, e *entry) {
	t.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
	t.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
