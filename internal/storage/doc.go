// Package storage implements the per-node bounded value store and the data
// structures behind the list and sorted-set types.
//
// # Overview
//
// Every key in a node maps to exactly one Value. Value is a closed sum type
// with five implementations:
//
//	String      plain text
//	*List       doubly linked list of text
//	Set         unique text members, unordered
//	Hash        field -> text
//	*SortedSet  member -> float64 score, ordered by score on read
//
// Code that consumes a Value switches over all five cases; the unexported
// marker method keeps other packages from adding a sixth.
//
// # Memory Accounting
//
// BoundedStore tracks an estimated footprint for each entry and the running
// total across the store:
//
//	used == Σ entry.size
//
// Sizes come from a structural estimator (SizeOf): a fixed overhead per
// entry and per container plus the byte length of every element. The
// estimator is not tied to the Go runtime's real allocation sizes; it only
// has to be monotonic and consistent across kinds.
//
// When a capacity is configured, a write whose result would bring used to or
// past the capacity fails with ErrCapacityExceeded and leaves the store
// exactly as it was.
//
// # Writes
//
// Wholesale replacement goes through Put, which recomputes the size with
// SizeOf. In-place container writes go through Update:
//
//	err := store.Update(key, func(tx *storage.Txn) error {
//	    list, ok := cur.(*storage.List)
//	    ...
//	    next := tx.ValueSize() + storage.ListElemSize(v)
//	    if err := tx.Reserve(next); err != nil {
//	        return err // nothing mutated yet
//	    }
//	    list.PushBack(v)
//	    tx.Commit(list, next)
//	    return nil
//	})
//
// The callback projects the post-write size from the tracked size plus the
// exact structural delta of the operation, so the projection always equals
// what SizeOf would compute on the mutated value.
//
// # Concurrency
//
// A single sync.RWMutex protects the entry map and the used counter. Reads
// share the lock through View; all writes are serialized. The containers
// themselves are not synchronized and must only be touched inside View or
// Update callbacks.
package storage
