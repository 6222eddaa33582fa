package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/metrics"
	"github.com/dreamware/clusterkv/internal/storage"
)

var (
	// ErrNoNodes is returned when no node is available to serve a request.
	ErrNoNodes = errors.New("no nodes available")

	// ErrWriteFailed is returned when at least one member of the write set
	// failed. Members that succeeded keep the write.
	ErrWriteFailed = errors.New("write failed")

	// ErrClosed is returned by AddNode after Close.
	ErrClosed = errors.New("manager closed")

	// ErrDuplicateNode is returned when a node with the same socket is
	// already registered.
	ErrDuplicateNode = errors.New("node already registered")
)

// DefaultCallTimeout bounds each RPC when no WithCallTimeout is given.
const DefaultCallTimeout = 5 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithSelector sets the routing strategy. The default is PrimarySelector.
func WithSelector(s Selector) Option {
	return func(m *Manager) { m.selector = s }
}

// WithCallTimeout bounds every RPC issued by the manager.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithHandleOptions applies opts to every node added afterwards.
func WithHandleOptions(opts ...HandleOption) Option {
	return func(m *Manager) { m.handleOpts = append(m.handleOpts, opts...) }
}

// Manager routes datastore operations to nodes. Nodes are kept in the order
// they were added and are never removed while the manager is open.
type Manager struct {
	selector    Selector
	handleOpts  []HandleOption
	callTimeout time.Duration

	mu      sync.RWMutex
	handles []*NodeHandle
	closed  bool
}

// New creates a Manager with no nodes.
func New(opts ...Option) *Manager {
	m := &Manager{
		selector:    PrimarySelector{},
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddNode registers a node and starts monitoring it. opts are applied after
// the manager-wide handle options.
func (m *Manager) AddNode(identity cluster.NodeIdentity, opts ...HandleOption) (*NodeHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	socket := identity.Socket()
	if slices.ContainsFunc(m.handles, func(h *NodeHandle) bool { return h.Identity.Socket() == socket }) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, socket)
	}

	all := append(slices.Clone(m.handleOpts), opts...)
	h, err := NewNodeHandle(identity, all...)
	if err != nil {
		return nil, err
	}
	m.handles = append(m.handles, h)
	log.Printf("manager: added node %s id=%s", identity, h.ID)
	return h, nil
}

// HasNode reports whether a node with the given "address:port" is registered.
func (m *Manager) HasNode(socket string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.ContainsFunc(m.handles, func(h *NodeHandle) bool { return h.Identity.Socket() == socket })
}

// NodeStatus is a diagnostic snapshot of one node.
type NodeStatus struct {
	ID        string               `json:"id"`
	Identity  cluster.NodeIdentity `json:"identity"`
	Socket    string               `json:"socket"`
	Status    string               `json:"status"`
	LastCheck time.Time            `json:"last_check"`
}

// Nodes returns a snapshot of every node in insertion order.
func (m *Manager) Nodes() []NodeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NodeStatus, len(m.handles))
	for i, h := range m.handles {
		out[i] = NodeStatus{
			ID:        h.ID,
			Identity:  h.Identity,
			Socket:    h.Identity.Socket(),
			Status:    h.Status().String(),
			LastCheck: h.LastCheck(),
		}
	}
	return out
}

// Close stops every monitor and releases every connection. Further AddNode
// calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	handles := m.handles
	m.handles = nil
	m.closed = true
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *NodeHandle) {
			defer wg.Done()
			h.Close()
		}(h)
	}
	wg.Wait()
	return nil
}

func (m *Manager) selectNodes(purpose Purpose, key string) []*NodeHandle {
	m.mu.RLock()
	candidates := make([]Candidate, len(m.handles))
	for i, h := range m.handles {
		candidates[i] = Candidate{Handle: h, Status: h.Status()}
	}
	m.mu.RUnlock()

	return m.selector.Select(purpose, key, candidates)
}

// write sends call to every member of the write set concurrently. It
// succeeds only if all of them do and returns the first member's result.
func write[T any](ctx context.Context, m *Manager, op, key string, call func(context.Context, *cluster.Client) (T, error)) (T, error) {
	var zero T
	handles := m.selectNodes(PurposeWrite, key)
	if len(handles) == 0 {
		return zero, ErrNoNodes
	}

	results := make([]T, len(handles))
	errs := make([]error, len(handles))

	var g errgroup.Group
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			results[i], errs[i] = invoke(ctx, m, op, h, call)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		metrics.IncWriteFailure(op)
		return zero, fmt.Errorf("%w: %s %q: %w", ErrWriteFailed, op, key, err)
	}
	return results[0], nil
}

// read asks the single read node and returns its answer as is.
func read[T any](ctx context.Context, m *Manager, op, key string, call func(context.Context, *cluster.Client) (T, error)) (T, error) {
	var zero T
	handles := m.selectNodes(PurposeRead, key)
	if len(handles) == 0 {
		return zero, ErrNoNodes
	}
	return invoke(ctx, m, op, handles[0], call)
}

// invoke runs one RPC against h under the manager's call timeout.
func invoke[T any](ctx context.Context, m *Manager, op string, h *NodeHandle, call func(context.Context, *cluster.Client) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	socket := h.Identity.Socket()
	start := time.Now()
	v, err := call(ctx, h.client)
	metrics.ObserveRPC(op, socket, start)
	if err != nil {
		return v, fmt.Errorf("node %s: %w", socket, err)
	}
	return v, nil
}

// StrSet stores a string on every node of the write set.
func (m *Manager) StrSet(ctx context.Context, key, value string) (bool, error) {
	return write(ctx, m, cluster.OpStrSet, key, func(ctx context.Context, c *cluster.Client) (bool, error) {
		return c.StrSet(ctx, key, value)
	})
}

// StrGet reads a string from the read node. A missing key yields "".
func (m *Manager) StrGet(ctx context.Context, key string) (string, error) {
	return read(ctx, m, cluster.OpStrGet, key, func(ctx context.Context, c *cluster.Client) (string, error) {
		return c.StrGet(ctx, key)
	})
}

func (m *Manager) LPush(ctx context.Context, key string, values ...string) (int, error) {
	return write(ctx, m, cluster.OpLPush, key, func(ctx context.Context, c *cluster.Client) (int, error) {
		return c.LPush(ctx, key, values...)
	})
}

func (m *Manager) RPush(ctx context.Context, key string, values ...string) (int, error) {
	return write(ctx, m, cluster.OpRPush, key, func(ctx context.Context, c *cluster.Client) (int, error) {
		return c.RPush(ctx, key, values...)
	})
}

func (m *Manager) LRange(ctx context.Context, key string, start, end int) ([]string, error) {
	return read(ctx, m, cluster.OpLRange, key, func(ctx context.Context, c *cluster.Client) ([]string, error) {
		return c.LRange(ctx, key, start, end)
	})
}

func (m *Manager) SAdd(ctx context.Context, key string, members ...string) (int, error) {
	return write(ctx, m, cluster.OpSAdd, key, func(ctx context.Context, c *cluster.Client) (int, error) {
		return c.SAdd(ctx, key, members...)
	})
}

func (m *Manager) SMembers(ctx context.Context, key string) ([]string, error) {
	return read(ctx, m, cluster.OpSMembers, key, func(ctx context.Context, c *cluster.Client) ([]string, error) {
		return c.SMembers(ctx, key)
	})
}

// HSet writes hash fields. Exactly one of the field+value and mapping forms
// must be given; nodes reject anything else with
// datastore.ErrInvalidArguments.
func (m *Manager) HSet(ctx context.Context, key string, args datastore.HashArgs) (int, error) {
	return write(ctx, m, cluster.OpHSet, key, func(ctx context.Context, c *cluster.Client) (int, error) {
		return c.HSet(ctx, key, args)
	})
}

func (m *Manager) HSetField(ctx context.Context, key, field, value string) (int, error) {
	return m.HSet(ctx, key, datastore.HashArgs{Field: &field, Value: &value})
}

func (m *Manager) HSetMapping(ctx context.Context, key string, mapping map[string]string) (int, error) {
	if mapping == nil {
		mapping = map[string]string{}
	}
	return m.HSet(ctx, key, datastore.HashArgs{Mapping: mapping})
}

// HGet returns a field value and whether it was present on the read node.
func (m *Manager) HGet(ctx context.Context, key, field string) (string, bool, error) {
	type result struct {
		value string
		found bool
	}
	r, err := read(ctx, m, cluster.OpHGet, key, func(ctx context.Context, c *cluster.Client) (result, error) {
		v, found, err := c.HGet(ctx, key, field)
		return result{v, found}, err
	})
	return r.value, r.found, err
}

func (m *Manager) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return read(ctx, m, cluster.OpHGetAll, key, func(ctx context.Context, c *cluster.Client) (map[string]string, error) {
		return c.HGetAll(ctx, key)
	})
}

func (m *Manager) ZAdd(ctx context.Context, key string, members map[string]float64) (int, error) {
	return write(ctx, m, cluster.OpZAdd, key, func(ctx context.Context, c *cluster.Client) (int, error) {
		return c.ZAdd(ctx, key, members)
	})
}

// ZRange returns members and scores ordered by ascending score.
func (m *Manager) ZRange(ctx context.Context, key string, start, end int) ([]storage.ScoredMember, error) {
	return read(ctx, m, cluster.OpZRange, key, func(ctx context.Context, c *cluster.Client) ([]storage.ScoredMember, error) {
		return c.ZRange(ctx, key, start, end)
	})
}

// ZRangeMembers is ZRange without scores.
func (m *Manager) ZRangeMembers(ctx context.Context, key string, start, end int) ([]string, error) {
	return read(ctx, m, cluster.OpZRange, key, func(ctx context.Context, c *cluster.Client) ([]string, error) {
		return c.ZRangeMembers(ctx, key, start, end)
	})
}

// Delete removes key from every node of the write set and reports whether
// the first one held it.
func (m *Manager) Delete(ctx context.Context, key string) (bool, error) {
	return write(ctx, m, cluster.OpDelete, key, func(ctx context.Context, c *cluster.Client) (bool, error) {
		return c.Delete(ctx, key)
	})
}
