package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrCapacityExceeded is returned when a write would push the store's total
// usage to or past its configured capacity. The store is left unchanged.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys     int   `json:"keys"`     // Number of keys
	Bytes    int64 `json:"bytes"`    // Estimated bytes in use
	Capacity int64 `json:"capacity"` // Configured budget, 0 when unbounded
}

type entry struct {
	value Value
	size  int64 // entry footprint including key overhead
}

// BoundedStore maps keys to Values and tracks the estimated footprint of
// every entry against an optional capacity budget.
//
// A single RWMutex guards the whole store: used is a store-wide counter, so
// writes are serialized per store rather than per key.
type BoundedStore struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int64
	used     int64
}

// NewBoundedStore creates a store with the given byte budget. A capacity of
// zero or less disables the limit.
func NewBoundedStore(capacity int64) *BoundedStore {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedStore{
		entries:  make(map[string]*entry),
		capacity: capacity,
	}
}

// Capacity returns the configured budget, 0 when unbounded.
func (s *BoundedStore) Capacity() int64 {
	return s.capacity
}

// Used returns the sum of all entry sizes.
func (s *BoundedStore) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Len returns the number of keys.
func (s *BoundedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// View calls fn with the value stored under key while holding the read lock.
// fn must not retain or modify mutable containers after it returns.
func (s *BoundedStore) View(key string, fn func(v Value, ok bool)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		fn(nil, false)
		return
	}
	fn(e.value, true)
}

// Put replaces the value under key wholesale, recomputing its size.
// Returns ErrCapacityExceeded without touching the store if it does not fit.
func (s *BoundedStore) Put(key string, v Value) error {
	return s.Update(key, func(tx *Txn) error {
		return tx.Replace(v)
	})
}

// Delete removes key and reports whether it existed.
func (s *BoundedStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.used -= e.size
	delete(s.entries, key)
	return true
}

// Keys returns all keys in lexicographic order.
func (s *BoundedStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns storage statistics
func (s *BoundedStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		Keys:     len(s.entries),
		Bytes:    s.used,
		Capacity: s.capacity,
	}
}

// Update runs fn as a single atomic write against key. fn inspects the
// current value through tx, checks the projected size with Reserve and then
// commits with Commit or Replace. Returning an error from fn leaves the
// store as it was, provided fn did not mutate a container before reserving.
func (s *BoundedStore) Update(key string, fn func(tx *Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Txn{store: s, key: key, cur: s.entries[key]}
	return fn(tx)
}

// Txn is the view of one key handed to Update callbacks. It is only valid
// for the duration of the callback.
type Txn struct {
	store *BoundedStore
	cur   *entry
	key   string
}

// Key returns the key being written.
func (t *Txn) Key() string { return t.key }

// Value returns the current value under the key.
func (t *Txn) Value() (Value, bool) {
	if t.cur == nil {
		return nil, false
	}
	return t.cur.value, true
}

// ValueSize returns the tracked size of the current value, excluding the
// per-entry key overhead. Zero when the key is absent.
func (t *Txn) ValueSize() int64 {
	if t.cur == nil {
		return 0
	}
	return t.cur.size - entrySize(t.key, 0)
}

// Reserve checks whether replacing the current entry with a value of
// valueSize bytes fits in the budget.
func (t *Txn) Reserve(valueSize int64) error {
	s := t.store
	if s.capacity <= 0 {
		return nil
	}
	var old int64
	if t.cur != nil {
		old = t.cur.size
	}
	next := s.used - old + entrySize(t.key, valueSize)
	if next >= s.capacity {
		return fmt.Errorf("%w: key %q needs %d bytes, store at %d/%d",
			ErrCapacityExceeded, t.key, entrySize(t.key, valueSize), s.used, s.capacity)
	}
	return nil
}

// Commit stores v with a size the caller has already reserved.
func (t *Txn) Commit(v Value, valueSize int64) {
	s := t.store
	size := entrySize(t.key, valueSize)
	if t.cur != nil {
		s.used -= t.cur.size
		t.cur.value = v
		t.cur.size = size
	} else {
		t.cur = &entry{value: v, size: size}
		s.entries[t.key] = t.cur
	}
	s.used += size
}

// Replace recomputes the size of v, reserves it and commits.
func (t *Txn) Replace(v Value) error {
	size := SizeOf(v)
	if err := t.Reserve(size); err != nil {
		return err
	}
	t.Commit(v, size)
	return nil
}
