package storage

import "fmt"

// Kind identifies which of the five supported data types a Value holds.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindList
	KindSet
	KindHash
	KindSortedSet
)

// String returns the lowercase type name used in logs and /info output.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindSortedSet:
		return "zset"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the unit of storage. It is a closed set: String, *List, Set, Hash
// and *SortedSet are the only implementations, enforced by the unexported
// marker method.
type Value interface {
	Kind() Kind
	value()
}

// String is a plain text value.
type String string

// Set is an unordered collection of unique members.
type Set map[string]struct{}

// Hash maps field names to text values.
type Hash map[string]string

func (String) Kind() Kind     { return KindString }
func (*List) Kind() Kind      { return KindList }
func (Set) Kind() Kind        { return KindSet }
func (Hash) Kind() Kind       { return KindHash }
func (*SortedSet) Kind() Kind { return KindSortedSet }

func (String) value()     {}
func (*List) value()      {}
func (Set) value()        {}
func (Hash) value()       {}
func (*SortedSet) value() {}

// Structural size estimate, in bytes. The numbers approximate Go's runtime
// overhead per container and per element; they only need to be monotonic and
// applied the same way for every kind.
const (
	EntryOverhead = 64

	stringOverhead     = 16
	listOverhead       = 32
	listNodeOverhead   = 32
	setOverhead        = 48
	setMemberOverhead  = 16
	hashOverhead       = 48
	hashFieldOverhead  = 32
	zsetOverhead       = 48
	zsetMemberOverhead = 40
)

// SizeOf recomputes the estimated footprint of v from scratch.
func SizeOf(v Value) int64 {
	switch val := v.(type) {
	case String:
		return stringOverhead + int64(len(val))
	case *List:
		size := int64(listOverhead)
		for n := val.head; n != nil; n = n.next {
			size += ListElemSize(n.value)
		}
		return size
	case Set:
		size := int64(setOverhead)
		for m := range val {
			size += SetMemberSize(m)
		}
		return size
	case Hash:
		size := int64(hashOverhead)
		for f, fv := range val {
			size += HashFieldSize(f, fv)
		}
		return size
	case *SortedSet:
		size := int64(zsetOverhead)
		for _, m := range val.members {
			size += SortedSetMemberSize(m.Member)
		}
		return size
	default:
		panic(fmt.Sprintf("storage: unknown value type %T", v))
	}
}

// EmptySize is the footprint of a freshly created container of kind k.
func EmptySize(k Kind) int64 {
	switch k {
	case KindString:
		return stringOverhead
	case KindList:
		return listOverhead
	case KindSet:
		return setOverhead
	case KindHash:
		return hashOverhead
	case KindSortedSet:
		return zsetOverhead
	default:
		panic(fmt.Sprintf("storage: unknown kind %d", uint8(k)))
	}
}

// ListElemSize is the cost of one list element.
func ListElemSize(s string) int64 { return listNodeOverhead + int64(len(s)) }

// SetMemberSize is the cost of one set member.
func SetMemberSize(m string) int64 { return setMemberOverhead + int64(len(m)) }

// HashFieldSize is the cost of one hash field holding value v.
func HashFieldSize(f, v string) int64 { return hashFieldOverhead + int64(len(f)) + int64(len(v)) }

// SortedSetMemberSize is the cost of one sorted-set member; scores are fixed width.
func SortedSetMemberSize(m string) int64 { return zsetMemberOverhead + int64(len(m)) }

func entrySize(key string, valueSize int64) int64 {
	return EntryOverhead + int64(len(key)) + valueSize
}
