package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/metrics"
)

// HandleOption configures a NodeHandle.
type HandleOption func(*handleConfig)

type handleConfig struct {
	probe        ProbeFunc
	interval     time.Duration
	probeTimeout time.Duration
	baseURL      string
}

// WithInterval sets the wait between liveness probes. Zero selects
// DefaultInterval.
func WithInterval(d time.Duration) HandleOption {
	return func(c *handleConfig) { c.interval = d }
}

// WithProbeTimeout bounds each liveness probe.
func WithProbeTimeout(d time.Duration) HandleOption {
	return func(c *handleConfig) { c.probeTimeout = d }
}

// WithProbe replaces the default GET /health probe.
func WithProbe(probe ProbeFunc) HandleOption {
	return func(c *handleConfig) { c.probe = probe }
}

// WithBaseURL overrides the URL derived from the node identity, e.g. to go
// through a proxy.
func WithBaseURL(url string) HandleOption {
	return func(c *handleConfig) { c.baseURL = url }
}

// NodeHandle is the manager's connection to one node. It owns the RPC client
// and the liveness monitor; Close releases both.
type NodeHandle struct {
	ID       string
	Identity cluster.NodeIdentity

	client    *cluster.Client
	monitor   *monitor
	closeOnce sync.Once
}

// NewNodeHandle validates identity, opens a client and starts monitoring.
func NewNodeHandle(identity cluster.NodeIdentity, opts ...HandleOption) (*NodeHandle, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	cfg := handleConfig{baseURL: identity.BaseURL()}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &NodeHandle{
		ID:       uuid.NewString(),
		Identity: identity,
		client:   cluster.NewClient(cfg.baseURL),
	}
	if cfg.probe == nil {
		cfg.probe = h.client.Health
	}

	socket := identity.Socket()
	h.monitor = newMonitor(socket, cfg.probe, cfg.interval, cfg.probeTimeout)
	h.monitor.onCheck = func(s Status) { metrics.SetNodeUp(socket, s == StatusUp) }
	metrics.SetNodeUp(socket, false)
	h.monitor.start()
	return h, nil
}

// Status returns the result of the most recent probe. It is StatusDown until
// the first probe completes and may be up to one interval stale.
func (h *NodeHandle) Status() Status { return h.monitor.Status() }

// LastCheck returns when the most recent probe completed.
func (h *NodeHandle) LastCheck() time.Time { return h.monitor.LastCheck() }

// Interval returns the probe interval in effect.
func (h *NodeHandle) Interval() time.Duration { return h.monitor.interval }

// Client returns the node's RPC client.
func (h *NodeHandle) Client() *cluster.Client { return h.client }

// Close stops the monitor, waits for it to exit and closes idle connections.
// It is safe to call more than once.
func (h *NodeHandle) Close() {
	h.closeOnce.Do(func() {
		h.monitor.stop()
		metrics.ForgetNode(h.Identity.Socket())
		h.client.Close()
	})
}
