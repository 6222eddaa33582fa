// Package datastore provides the typed operation layer that every clusterkv
// node serves: strings, lists, sets, hashes and sorted sets stored in a
// single memory-bounded keyspace.
//
// # Overview
//
// A Datastore wraps a storage.BoundedStore and exposes one method per
// operation. Each method runs as one atomic write or read against the store,
// so concurrent requests never observe a half-applied mutation and the
// store's byte accounting stays exact.
//
//	ds := datastore.New(datastore.WithCapacity(64 << 20))
//	ds.RPush("queue", "a", "b")
//	ds.LRange("queue", 0, -1) // [a b]
//
// # Type Coercion
//
// Typed writes never fail because of the type already stored under a key.
// If the key holds a different kind, the old value is discarded and a fresh
// container is created:
//
//	ds.StrSet("k", "v")
//	ds.LPush("k", "a")   // the string is gone
//	ds.StrGet("k")       // "", false
//
// This matches the behavior clients of earlier releases depend on. Nodes
// started with WithStrictTypes return ErrWrongType instead.
//
// # Capacity
//
// Every write projects the entry's size after the mutation and checks it
// against the budget before touching the container. A write that would bring
// usage to or past the capacity fails with storage.ErrCapacityExceeded and
// leaves both the value and the accounting unchanged.
//
// # Statistics
//
// Read, write, delete and rejection counters are kept with atomic operations
// and reported by Stats alongside the store's key count and byte usage.
package datastore
