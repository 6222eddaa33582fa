package datastore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/dreamware/clusterkv/internal/storage"
)

// DefaultCapacity is the byte budget used when no WithCapacity option is given.
const DefaultCapacity int64 = 1 << 30

var (
	// ErrInvalidArguments is returned when a call violates an operation's
	// input contract. Nothing is written.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrWrongType is returned by typed writes in strict mode when the key
	// already holds a different kind of value.
	ErrWrongType = errors.New("wrong type")
)

// Option configures a Datastore.
type Option func(*Datastore)

// WithCapacity sets the store's byte budget. Zero disables the limit.
func WithCapacity(bytes int64) Option {
	return func(d *Datastore) { d.capacity = bytes }
}

// WithStrictTypes makes typed writes fail with ErrWrongType instead of
// silently replacing a value of another kind.
func WithStrictTypes() Option {
	return func(d *Datastore) { d.strict = true }
}

// Datastore is the typed operation layer over a BoundedStore.
//
// Typed writes (LPush, RPush, SAdd, HSet, ZAdd) replace an absent or
// differently-typed value with an empty container of the right kind before
// writing. The previous value is discarded without error: a StrSet followed by
// an LPush on the same key destroys the string. Use WithStrictTypes to turn
// this into ErrWrongType.
//
// Reads never fail: absent keys and type mismatches yield the zero value.
type Datastore struct {
	store    *storage.BoundedStore
	stats    *OperationStats
	capacity int64
	strict   bool
}

// OperationStats tracks operation counts
type OperationStats struct {
	Reads    uint64 `json:"reads"`    // Number of read operations
	Writes   uint64 `json:"writes"`   // Number of successful writes
	Deletes  uint64 `json:"deletes"`  // Number of delete operations
	Rejected uint64 `json:"rejected"` // Writes refused for capacity, type or arguments
}

// Stats combines operation counts with storage statistics.
type Stats struct {
	Ops     OperationStats     `json:"operations"`
	Storage storage.StoreStats `json:"storage"`
}

// New creates a Datastore.
func New(opts ...Option) *Datastore {
	d := &Datastore{
		capacity: DefaultCapacity,
		stats:    &OperationStats{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.store = storage.NewBoundedStore(d.capacity)
	return d
}

// Strict reports whether strict type checking is enabled.
func (d *Datastore) Strict() bool { return d.strict }

// Size returns the estimated bytes in use.
func (d *Datastore) Size() int64 { return d.store.Used() }

// Len returns the number of keys.
func (d *Datastore) Len() int { return d.store.Len() }

// Delete removes key of any type and reports whether it existed.
func (d *Datastore) Delete(key string) bool {
	atomic.AddUint64(&d.stats.Deletes, 1)
	return d.store.Delete(key)
}

// Stats returns current operation and storage statistics.
func (d *Datastore) Stats() Stats {
	return Stats{
		Ops: OperationStats{
			Reads:    atomic.LoadUint64(&d.stats.Reads),
			Writes:   atomic.LoadUint64(&d.stats.Writes),
			Deletes:  atomic.LoadUint64(&d.stats.Deletes),
			Rejected: atomic.LoadUint64(&d.stats.Rejected),
		},
		Storage: d.store.Stats(),
	}
}

// String //

// StrSet stores value under key, replacing whatever was there.
// It only fails when the store is out of capacity.
func (d *Datastore) StrSet(key, value string) (bool, error) {
	err := d.store.Put(key, storage.String(value))
	d.recordWrite(err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// StrGet returns the string under key. ok is false when the key is absent or
// holds another type.
func (d *Datastore) StrGet(key string) (value string, ok bool) {
	d.view(key, func(v storage.Value) {
		if s, isStr := v.(storage.String); isStr {
			value, ok = string(s), true
		}
	})
	return value, ok
}

// List //

// LPush pushes each value onto the front of the list, so the last argument
// ends up first. Returns the new length.
func (d *Datastore) LPush(key string, values ...string) (int, error) {
	return d.push(key, true, values)
}

// RPush appends values to the tail of the list. Returns the new length.
func (d *Datastore) RPush(key string, values ...string) (int, error) {
	return d.push(key, false, values)
}

func (d *Datastore) push(key string, front bool, values []string) (int, error) {
	var length int
	err := d.store.Update(key, func(tx *storage.Txn) error {
		v, size, err := d.container(tx, storage.KindList)
		if err != nil {
			return err
		}
		for _, s := range values {
			size += storage.ListElemSize(s)
		}
		if err := tx.Reserve(size); err != nil {
			return err
		}
		list := v.(*storage.List)
		if front {
			length = list.PushFront(values...)
		} else {
			length = list.PushBack(values...)
		}
		tx.Commit(list, size)
		return nil
	})
	d.recordWrite(err)
	if err != nil {
		return 0, err
	}
	return length, nil
}

// LRange returns list elements in the inclusive window [start, end].
// Negative indices count from the end. Non-list keys yield an empty slice.
func (d *Datastore) LRange(key string, start, end int) []string {
	out := []string{}
	d.view(key, func(v storage.Value) {
		if list, ok := v.(*storage.List); ok {
			out = list.Range(start, end)
		}
	})
	return out
}

// Set //

// SAdd adds members to the set and returns how many were not already present.
func (d *Datastore) SAdd(key string, members ...string) (int, error) {
	var added int
	err := d.store.Update(key, func(tx *storage.Txn) error {
		v, size, err := d.container(tx, storage.KindSet)
		if err != nil {
			return err
		}
		set := v.(storage.Set)
		fresh := make(map[string]struct{}, len(members))
		for _, m := range members {
			if _, ok := set[m]; ok {
				continue
			}
			if _, ok := fresh[m]; ok {
				continue
			}
			fresh[m] = struct{}{}
			size += storage.SetMemberSize(m)
		}
		if err := tx.Reserve(size); err != nil {
			return err
		}
		for m := range fresh {
			set[m] = struct{}{}
		}
		added = len(fresh)
		tx.Commit(set, size)
		return nil
	})
	d.recordWrite(err)
	if err != nil {
		return 0, err
	}
	return added, nil
}

// SMembers returns the set's members in sorted order. Non-set keys yield an
// empty slice.
func (d *Datastore) SMembers(key string) []string {
	out := []string{}
	d.view(key, func(v storage.Value) {
		if set, ok := v.(storage.Set); ok {
			out = make([]string, 0, len(set))
			for m := range set {
				out = append(out, m)
			}
		}
	})
	sort.Strings(out)
	return out
}

// Hash //

// HashArgs selects one of the two HSet calling forms: Field and Value
// together, or Mapping alone.
type HashArgs struct {
	Field   *string
	Value   *string
	Mapping map[string]string
}

func (a HashArgs) pairs() (map[string]string, error) {
	if a.Mapping != nil {
		if a.Field != nil || a.Value != nil {
			return nil, fmt.Errorf("%w: specify either field+value or mapping, not both", ErrInvalidArguments)
		}
		return a.Mapping, nil
	}
	if a.Field != nil && a.Value != nil {
		return map[string]string{*a.Field: *a.Value}, nil
	}
	return nil, fmt.Errorf("%w: specify either field+value or mapping", ErrInvalidArguments)
}

// HSet writes fields into the hash and returns how many were newly created.
// Overwriting an existing field does not count.
func (d *Datastore) HSet(key string, args HashArgs) (int, error) {
	pairs, err := args.pairs()
	if err != nil {
		atomic.AddUint64(&d.stats.Rejected, 1)
		return 0, err
	}

	var created int
	err = d.store.Update(key, func(tx *storage.Txn) error {
		v, size, err := d.container(tx, storage.KindHash)
		if err != nil {
			return err
		}
		hash := v.(storage.Hash)
		for f, val := range pairs {
			if old, ok := hash[f]; ok {
				size += int64(len(val)) - int64(len(old))
				continue
			}
			size += storage.HashFieldSize(f, val)
		}
		if err := tx.Reserve(size); err != nil {
			return err
		}
		for f, val := range pairs {
			if _, ok := hash[f]; !ok {
				created++
			}
			hash[f] = val
		}
		tx.Commit(hash, size)
		return nil
	})
	d.recordWrite(err)
	if err != nil {
		return 0, err
	}
	return created, nil
}

// HSetField is HSet with the single field+value form.
func (d *Datastore) HSetField(key, field, value string) (int, error) {
	return d.HSet(key, HashArgs{Field: &field, Value: &value})
}

// HSetMapping is HSet with the mapping form.
func (d *Datastore) HSetMapping(key string, mapping map[string]string) (int, error) {
	if mapping == nil {
		mapping = map[string]string{}
	}
	return d.HSet(key, HashArgs{Mapping: mapping})
}

// HGet returns one field of the hash. ok is false when the key, the field or
// the hash type is missing.
func (d *Datastore) HGet(key, field string) (value string, ok bool) {
	d.view(key, func(v storage.Value) {
		if hash, isHash := v.(storage.Hash); isHash {
			value, ok = hash[field]
		}
	})
	return value, ok
}

// HGetAll returns a copy of the hash. Non-hash keys yield an empty map.
func (d *Datastore) HGetAll(key string) map[string]string {
	out := map[string]string{}
	d.view(key, func(v storage.Value) {
		if hash, ok := v.(storage.Hash); ok {
			for f, val := range hash {
				out[f] = val
			}
		}
	})
	return out
}

// Sorted set //

// ZAdd upserts member scores and returns how many members were new. NaN and
// infinite scores are rejected with ErrInvalidArguments.
func (d *Datastore) ZAdd(key string, members map[string]float64) (int, error) {
	for m, score := range members {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			atomic.AddUint64(&d.stats.Rejected, 1)
			return 0, fmt.Errorf("%w: score of %q is not a finite number", ErrInvalidArguments, m)
		}
	}

	var added int
	err := d.store.Update(key, func(tx *storage.Txn) error {
		v, size, err := d.container(tx, storage.KindSortedSet)
		if err != nil {
			return err
		}
		zset := v.(*storage.SortedSet)
		for m := range members {
			if !zset.Has(m) {
				size += storage.SortedSetMemberSize(m)
			}
		}
		if err := tx.Reserve(size); err != nil {
			return err
		}
		for m, score := range members {
			if zset.Add(m, score) {
				added++
			}
		}
		tx.Commit(zset, size)
		return nil
	})
	d.recordWrite(err)
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ZRange returns members ordered by ascending score within the inclusive
// window [start, end]. Equal scores keep insertion order.
func (d *Datastore) ZRange(key string, start, end int) []storage.ScoredMember {
	out := []storage.ScoredMember{}
	d.view(key, func(v storage.Value) {
		if zset, ok := v.(*storage.SortedSet); ok {
			out = zset.Range(start, end)
		}
	})
	return out
}

// ZRangeMembers is ZRange without scores.
func (d *Datastore) ZRangeMembers(key string, start, end int) []string {
	scored := d.ZRange(key, start, end)
	out := make([]string, len(scored))
	for i, m := range scored {
		out[i] = m.Member
	}
	return out
}

// container returns the value of kind k under the transaction's key along
// with its tracked size, or a fresh empty container when the key is absent
// or holds another kind.
func (d *Datastore) container(tx *storage.Txn, k storage.Kind) (storage.Value, int64, error) {
	cur, ok := tx.Value()
	if ok && cur.Kind() == k {
		return cur, tx.ValueSize(), nil
	}
	if ok && d.strict {
		return nil, 0, fmt.Errorf("%w: key %q holds a %s, not a %s", ErrWrongType, tx.Key(), cur.Kind(), k)
	}
	return newContainer(k), storage.EmptySize(k), nil
}

func newContainer(k storage.Kind) storage.Value {
	switch k {
	case storage.KindString:
		return storage.String("")
	case storage.KindList:
		return storage.NewList()
	case storage.KindSet:
		return storage.Set{}
	case storage.KindHash:
		return storage.Hash{}
	case storage.KindSortedSet:
		return storage.NewSortedSet()
	default:
		panic(fmt.Sprintf("datastore: unknown kind %s", k))
	}
}

func (d *Datastore) view(key string, fn func(v storage.Value)) {
	atomic.AddUint64(&d.stats.Reads, 1)
	d.store.View(key, func(v storage.Value, ok bool) {
		if ok {
			fn(v)
		}
	})
}

func (d *Datastore) recordWrite(err error) {
	if err != nil {
		atomic.AddUint64(&d.stats.Rejected, 1)
		return
	}
	atomic.AddUint64(&d.stats.Writes, 1)
}
