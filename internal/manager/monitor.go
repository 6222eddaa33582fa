package manager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the last liveness probe result for a node.
type Status int32

const (
	// StatusDown is also the state before the first probe completes.
	StatusDown Status = iota
	StatusUp
)

func (s Status) String() string {
	if s == StatusUp {
		return "up"
	}
	return "down"
}

const (
	// DefaultInterval is the monitor's wait between probes.
	DefaultInterval = 5 * time.Second
	// DefaultProbeTimeout bounds one probe. It is lowered to half the
	// interval when that is shorter, so a hung node is marked down at most
	// interval plus probe timeout after its last good probe.
	DefaultProbeTimeout = 2 * time.Second
)

// ProbeFunc checks whether a node is reachable.
type ProbeFunc func(ctx context.Context) error

// monitor probes one node until its context is cancelled. It is the only
// writer of the node's status.
type monitor struct {
	probe    ProbeFunc
	onCheck  func(Status)
	name     string
	interval time.Duration
	timeout  time.Duration

	status    atomic.Int32
	lastCheck atomic.Int64 // unix nanos of the last completed probe
	fails     atomic.Int64 // consecutive failed probes

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newMonitor(name string, probe ProbeFunc, interval, timeout time.Duration) *monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if limit := interval / 2; limit > 0 && timeout > limit {
		timeout = limit
	}
	m := &monitor{
		probe:    probe,
		name:     name,
		interval: interval,
		timeout:  timeout,
	}
	m.status.Store(int32(StatusDown))
	return m
}

// start launches the probe loop. The first probe runs immediately.
func (m *monitor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx)
}

func (m *monitor) run(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		m.check(ctx)

		timer.Reset(m.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
}

// stop cancels the loop and waits for it to exit.
func (m *monitor) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// check runs one probe and records the result. A panicking probe counts as
// a failure.
func (m *monitor) check(ctx context.Context) {
	err := m.runProbe(ctx)
	if ctx.Err() != nil {
		// Cancelled mid-probe; the handle is going away.
		return
	}

	next := StatusUp
	if err != nil {
		next = StatusDown
		fails := m.fails.Add(1)
		if fails == 1 {
			log.Printf("manager: probe of %s failed: %v", m.name, err)
		}
	} else {
		m.fails.Store(0)
	}
	prev := Status(m.status.Swap(int32(next)))
	m.lastCheck.Store(time.Now().UnixNano())
	if prev != next {
		log.Printf("manager: node %s is %s", m.name, next)
	}
	if m.onCheck != nil {
		m.onCheck(next)
	}
}

func (m *monitor) runProbe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.probe(ctx)
}

func (m *monitor) Status() Status {
	return Status(m.status.Load())
}

// LastCheck returns when the last probe completed, zero before the first.
func (m *monitor) LastCheck() time.Time {
	ns := m.lastCheck.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
