package manager

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dreamware/clusterkv/internal/cluster"
)

// Purpose tells a Selector whether it is choosing a write set or a read node.
type Purpose int

const (
	PurposeWrite Purpose = iota
	PurposeRead
)

func (p Purpose) String() string {
	if p == PurposeRead {
		return "read"
	}
	return "write"
}

// Candidate is a node handle together with its liveness status at the time
// of selection.
type Candidate struct {
	Handle *NodeHandle
	Status Status
}

// Selector decides which nodes serve a request. For PurposeWrite it returns
// the write set, every member of which must acknowledge the write. For
// PurposeRead only the first returned handle is used. Candidates are in the
// order nodes were added.
type Selector interface {
	Select(purpose Purpose, key string, nodes []Candidate) []*NodeHandle
}

// PrimarySelector routes every read and write to the first node added. It
// ignores liveness.
type PrimarySelector struct{}

func (PrimarySelector) Select(_ Purpose, _ string, nodes []Candidate) []*NodeHandle {
	if len(nodes) == 0 {
		return nil
	}
	return []*NodeHandle{nodes[0].Handle}
}

// ReplicaSetSelector treats every node as a full replica. Writes go to all
// nodes; with SkipDown, nodes whose last probe failed are left out. Reads
// are spread over live nodes by rendezvous hashing of the key, falling back
// to the first node when none is up.
type ReplicaSetSelector struct {
	SkipDown bool
}

func (s ReplicaSetSelector) Select(purpose Purpose, key string, nodes []Candidate) []*NodeHandle {
	if len(nodes) == 0 {
		return nil
	}

	if purpose == PurposeWrite {
		out := make([]*NodeHandle, 0, len(nodes))
		for _, c := range nodes {
			if s.SkipDown && c.Status != StatusUp {
				continue
			}
			out = append(out, c.Handle)
		}
		return out
	}

	var (
		best      *NodeHandle
		bestScore uint64
	)
	for _, c := range nodes {
		if c.Status != StatusUp {
			continue
		}
		score := rendezvousScore(key, c.Handle.Identity.Socket())
		if best == nil || score > bestScore {
			best = c.Handle
			bestScore = score
		}
	}
	if best == nil {
		best = nodes[0].Handle
	}
	return []*NodeHandle{best}
}

// rendezvousScore is the highest-random-weight score of key on node.
func rendezvousScore(key, node string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(key)
	_, _ = h.WriteString("::")
	_, _ = h.WriteString(node)
	return h.Sum64()
}

// Selector names accepted by SelectorByName.
const (
	SelectorPrimary            = "primary"
	SelectorReplicaSet         = "replica-set"
	SelectorReplicaSetSkipDown = "replica-set-skip-down"
)

// SelectorByName returns the selector for a configuration value. An empty
// name selects PrimarySelector.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", SelectorPrimary:
		return PrimarySelector{}, nil
	case SelectorReplicaSet:
		return ReplicaSetSelector{}, nil
	case SelectorReplicaSetSkipDown:
		return ReplicaSetSelector{SkipDown: true}, nil
	default:
		return nil, fmt.Errorf("%w: unknown selector %q", cluster.ErrInvalidConfiguration, name)
	}
}
