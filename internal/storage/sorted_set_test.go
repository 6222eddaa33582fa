package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSortedSetAdd verifies new-member detection and score updates.
func TestSortedSetAdd(t *testing.T) {
	z := NewSortedSet()

	assert.True(t, z.Add("a", 1.0))
	assert.True(t, z.Add("", 0.5))
	assert.False(t, z.Add("a", 2.0))
	assert.Equal(t, 2, z.Len())

	score, ok := z.Score("a")
	require.True(t, ok)
	assert.Equal(t, 2.0, score)

	_, ok = z.Score("missing")
	assert.False(t, ok)
	assert.True(t, z.Has(""))
}

// TestSortedSetRange verifies ascending order, insertion-order ties and slicing.
func TestSortedSetRange(t *testing.T) {
	z := NewSortedSet()
	z.Add("x", 1.5)
	z.Add("y", 0.1)
	z.Add("b", 1.0)
	z.Add("a", 1.0)

	got := z.Range(0, -1)
	assert.Equal(t, []ScoredMember{
		{Member: "y", Score: 0.1},
		{Member: "b", Score: 1.0},
		{Member: "a", Score: 1.0},
		{Member: "x", Score: 1.5},
	}, got)

	assert.Equal(t, []ScoredMember{{Member: "b", Score: 1.0}, {Member: "a", Score: 1.0}}, z.Range(1, 2))
	assert.Equal(t, []ScoredMember{{Member: "x", Score: 1.5}}, z.Range(-1, -1))
	assert.Empty(t, z.Range(5, 10))
}

// TestSizeOfConsistent verifies the estimator grows with content for every kind.
func TestSizeOfConsistent(t *testing.T) {
	z := NewSortedSet()
	z.Add("m", 1)

	values := []Value{
		String("abc"),
		NewList("a", "b"),
		Set{"a": {}, "bb": {}},
		Hash{"f": "v"},
		z,
	}
	for _, v := range values {
		t.Run(v.Kind().String(), func(t *testing.T) {
			assert.Greater(t, SizeOf(v), EmptySize(v.Kind()))
		})
	}

	assert.Equal(t, EmptySize(KindList)+ListElemSize("a")+ListElemSize("b"), SizeOf(NewList("a", "b")))
	assert.Equal(t, EmptySize(KindHash)+HashFieldSize("f", "v"), SizeOf(Hash{"f": "v"}))
	assert.Equal(t, EmptySize(KindSortedSet)+SortedSetMemberSize("m"), SizeOf(z))
}
