package storage

import "sort"

// ScoredMember pairs a sorted-set member with its score.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// SortedSet maps members to scores and remembers first-insertion order.
// Ranges are ordered by ascending score; equal scores keep insertion order
// rather than falling back to member names.
type SortedSet struct {
	index   map[string]int
	members []ScoredMember
}

// NewSortedSet returns an empty sorted set.
func NewSortedSet() *SortedSet {
	return &SortedSet{index: make(map[string]int)}
}

// Len returns the number of members.
func (z *SortedSet) Len() int { return len(z.members) }

// Add upserts member with score. It reports whether the member is new; a
// score update keeps the member's original insertion position.
func (z *SortedSet) Add(member string, score float64) bool {
	if i, ok := z.index[member]; ok {
		z.members[i].Score = score
		return false
	}
	z.index[member] = len(z.members)
	z.members = append(z.members, ScoredMember{Member: member, Score: score})
	return true
}

// Has reports whether member is present.
func (z *SortedSet) Has(member string) bool {
	_, ok := z.index[member]
	return ok
}

// Score returns member's score.
func (z *SortedSet) Score(member string) (float64, bool) {
	i, ok := z.index[member]
	if !ok {
		return 0, false
	}
	return z.members[i].Score, true
}

// Range sorts members by score and returns the inclusive [start, end] slice
// using the same indexing rules as List.Range.
func (z *SortedSet) Range(start, end int) []ScoredMember {
	lo, hi, ok := Bounds(start, end, len(z.members))
	if !ok {
		return []ScoredMember{}
	}
	sorted := make([]ScoredMember, len(z.members))
	copy(sorted, z.members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})
	out := make([]ScoredMember, hi-lo)
	copy(out, sorted[lo:hi])
	return out
}
