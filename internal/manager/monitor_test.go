package manager

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterkv/internal/cluster"
)

// TestNewMonitor verifies interval and timeout defaults.
func TestNewMonitor(t *testing.T) {
	noop := func(context.Context) error { return nil }

	m := newMonitor("n", noop, 0, 0)
	assert.Equal(t, DefaultInterval, m.interval)
	assert.Equal(t, DefaultProbeTimeout, m.timeout)
	assert.Equal(t, StatusDown, m.Status(), "status is down before the first probe")
	assert.True(t, m.LastCheck().IsZero())

	m = newMonitor("n", noop, 100*time.Millisecond, 0)
	assert.Equal(t, 50*time.Millisecond, m.timeout, "probe timeout is capped at half the interval")

	m = newMonitor("n", noop, 100*time.Millisecond, 80*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, m.timeout)

	m = newMonitor("n", noop, time.Second, 300*time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, m.timeout)
}

// TestMonitorFirstProbeImmediate verifies the first probe does not wait an interval.
func TestMonitorFirstProbeImmediate(t *testing.T) {
	m := newMonitor("n", func(context.Context) error { return nil }, time.Hour, 0)
	m.start()
	defer m.stop()

	require.Eventually(t, func() bool { return m.Status() == StatusUp }, time.Second, 5*time.Millisecond)
	assert.False(t, m.LastCheck().IsZero())
}

// TestMonitorTransitions verifies down and up transitions follow the probe.
func TestMonitorTransitions(t *testing.T) {
	var healthy atomic.Bool
	var probes atomic.Int64
	m := newMonitor("n", func(context.Context) error {
		probes.Add(1)
		if healthy.Load() {
			return nil
		}
		return errors.New("unreachable")
	}, 20*time.Millisecond, 0)

	var seen atomic.Int64
	m.onCheck = func(Status) { seen.Add(1) }

	m.start()
	defer m.stop()

	require.Eventually(t, func() bool { return probes.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusDown, m.Status())

	healthy.Store(true)
	require.Eventually(t, func() bool { return m.Status() == StatusUp }, time.Second, 5*time.Millisecond)

	healthy.Store(false)
	require.Eventually(t, func() bool { return m.Status() == StatusDown }, time.Second, 5*time.Millisecond)
	assert.Positive(t, seen.Load())
}

// TestMonitorPanickingProbe verifies a panic counts as down and the loop continues.
func TestMonitorPanickingProbe(t *testing.T) {
	var probes atomic.Int64
	m := newMonitor("n", func(context.Context) error {
		probes.Add(1)
		panic("boom")
	}, 10*time.Millisecond, 0)
	m.start()
	defer m.stop()

	require.Eventually(t, func() bool { return probes.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusDown, m.Status())
}

// TestMonitorStopDuringSleep verifies cancellation interrupts the wait.
func TestMonitorStopDuringSleep(t *testing.T) {
	m := newMonitor("n", func(context.Context) error { return nil }, time.Hour, 0)
	m.start()
	require.Eventually(t, func() bool { return m.Status() == StatusUp }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop while sleeping")
	}
}

// TestMonitorProbeTimeout verifies a hanging probe is cut off by the timeout.
func TestMonitorProbeTimeout(t *testing.T) {
	m := newMonitor("n", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 30*time.Millisecond, 10*time.Millisecond)
	m.start()
	defer m.stop()

	require.Eventually(t, func() bool { return !m.LastCheck().IsZero() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusDown, m.Status())
}

// TestMonitorHungNodeStaleness verifies a node that stops answering is marked
// down within one interval plus the capped probe timeout.
func TestMonitorHungNodeStaleness(t *testing.T) {
	const interval = 100 * time.Millisecond
	var hung atomic.Bool
	m := newMonitor("n", func(ctx context.Context) error {
		if hung.Load() {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, interval, 0)
	require.Less(t, m.timeout, interval)
	m.start()
	defer m.stop()

	require.Eventually(t, func() bool { return m.Status() == StatusUp }, time.Second, 5*time.Millisecond)
	hung.Store(true)
	start := time.Now()
	require.Eventually(t, func() bool { return m.Status() == StatusDown }, time.Second, 5*time.Millisecond)
	assert.Less(t, time.Since(start), interval+m.timeout+100*time.Millisecond)
}

// testIdentity returns an identity pointing at an httptest server.
func testIdentity(t *testing.T, ts *httptest.Server) cluster.NodeIdentity {
	t.Helper()
	host, port, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return cluster.NodeIdentity{Address: host, Port: p, Role: cluster.RoleShard, Group: "test"}
}

// TestNodeHandleLiveness verifies the default HTTP probe against a real server.
func TestNodeHandleLiveness(t *testing.T) {
	var failing atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	interval := 50 * time.Millisecond
	h, err := NewNodeHandle(testIdentity(t, ts), WithInterval(interval))
	require.NoError(t, err)
	defer h.Close()

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, interval, h.Interval())

	require.Eventually(t, func() bool { return h.Status() == StatusUp }, time.Second, 5*time.Millisecond)

	// Unreachable: down within one interval plus slack.
	failing.Store(true)
	require.Eventually(t, func() bool { return h.Status() == StatusDown }, 4*interval, 5*time.Millisecond)

	// Restored: up again within one more interval.
	failing.Store(false)
	require.Eventually(t, func() bool { return h.Status() == StatusUp }, 4*interval, 5*time.Millisecond)

	h.Close()
	h.Close()
}

// TestNodeHandleClosedServer verifies a node that is gone is reported down.
func TestNodeHandleClosedServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	id := testIdentity(t, ts)
	ts.Close()

	var probes atomic.Int64
	h, err := NewNodeHandle(id, WithInterval(20*time.Millisecond), WithProbe(func(ctx context.Context) error {
		probes.Add(1)
		return errors.New("connection refused")
	}))
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool { return probes.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusDown, h.Status())
}

// TestNewNodeHandleInvalidIdentity verifies validation happens before anything starts.
func TestNewNodeHandleInvalidIdentity(t *testing.T) {
	_, err := NewNodeHandle(cluster.NodeIdentity{Address: "localhost", Port: 1, Role: cluster.RoleShard})
	assert.ErrorIs(t, err, cluster.ErrInvalidConfiguration)
}
