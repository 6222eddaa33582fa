package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/manager"
	"github.com/dreamware/clusterkv/internal/node"
	"github.com/dreamware/clusterkv/internal/storage"
)

// startCluster runs n nodes and writes a cluster file listing them.
func startCluster(t *testing.T, selector string, n int, opts ...datastore.Option) (string, []*node.Server) {
	t.Helper()
	var body strings.Builder
	fmt.Fprintf(&body, "selector: %s\nmonitor_interval: 20ms\nnodes:\n", selector)

	servers := make([]*node.Server, n)
	for i := range servers {
		var srv *node.Server
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			srv.Handler().ServeHTTP(w, r)
		}))
		t.Cleanup(ts.Close)

		host, port, err := net.SplitHostPort(ts.Listener.Addr().String())
		require.NoError(t, err)
		p, err := strconv.Atoi(port)
		require.NoError(t, err)
		id := cluster.NodeIdentity{Address: host, Port: p, Role: cluster.RoleShard, Group: "test"}
		srv = node.NewServer(id, datastore.New(opts...))
		servers[i] = srv
		fmt.Fprintf(&body, "  - {address: %s, port: %d, role: shard}\n", host, p)
	}

	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body.String()), 0o600))
	return path, servers
}

func kvctl(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-cluster", path}, args...), &stdout, &stderr)
	return strings.TrimSpace(stdout.String()), err
}

// TestRunOperations drives every operation through a one-node cluster.
func TestRunOperations(t *testing.T) {
	path, _ := startCluster(t, "primary", 1)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"strset", "s", "hello"}, `true`},
		{[]string{"strget", "s"}, `"hello"`},
		{[]string{"strget", "missing"}, `""`},
		{[]string{"rpush", "l", "b", "c"}, `2`},
		{[]string{"lpush", "l", "a"}, `3`},
		{[]string{"lrange", "l", "0", "-1"}, `["a","b","c"]`},
		{[]string{"sadd", "set", "y", "x", "x"}, `2`},
		{[]string{"smembers", "set"}, `["x","y"]`},
		{[]string{"hset", "h", "f", "1"}, `1`},
		{[]string{"hset", "h", "f", "2", "g", "3"}, `1`},
		{[]string{"hget", "h", "f"}, `"2"`},
		{[]string{"hget", "h", "nope"}, `null`},
		{[]string{"hgetall", "h"}, `{"f":"2","g":"3"}`},
		{[]string{"zadd", "z", "2", "b", "1", "a"}, `2`},
		{[]string{"zrange", "z", "0", "-1"}, `["a","b"]`},
		{[]string{"zrange", "z", "0", "0", "WITHSCORES"}, `[{"member":"a","score":1}]`},
		{[]string{"delete", "s"}, `true`},
		{[]string{"del", "s"}, `false`},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := kvctl(t, path, tt.args...)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, out)
		})
	}
}

// TestRunNodes verifies the nodes listing reports probed nodes.
func TestRunNodes(t *testing.T) {
	path, _ := startCluster(t, "replica-set-skip-down", 2)

	out, err := kvctl(t, path, "nodes")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, `"status": "up"`))

	// Probes complete before the write, so both nodes take it.
	_, err = kvctl(t, path, "strset", "k", "v")
	require.NoError(t, err)
}

// TestRunReplicaSetWrites verifies a write reaches every node.
func TestRunReplicaSetWrites(t *testing.T) {
	path, servers := startCluster(t, "replica-set", 2)

	_, err := kvctl(t, path, "sadd", "k", "a")
	require.NoError(t, err)
	for _, s := range servers {
		assert.Equal(t, []string{"a"}, s.Datastore().SMembers("k"))
	}
}

// TestRunErrors covers usage and argument errors.
func TestRunErrors(t *testing.T) {
	path, _ := startCluster(t, "primary", 1)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown op", []string{"incr", "k"}},
		{"missing args", []string{"strset", "k"}},
		{"extra args", []string{"strget", "k", "j"}},
		{"odd hset", []string{"hset", "k", "f", "v", "g"}},
		{"bad score", []string{"zadd", "k", "high", "m"}},
		{"bad range", []string{"lrange", "k", "0", "end"}},
		{"bad zrange flag", []string{"zrange", "k", "0", "1", "scores"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kvctl(t, path, tt.args...)
			assert.Error(t, err)
		})
	}

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "usage: kvctl")

	_, err = kvctl(t, filepath.Join(t.TempDir(), "absent.yaml"), "strget", "k")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestRunRemoteError verifies node errors surface through the manager.
func TestRunRemoteError(t *testing.T) {
	path, _ := startCluster(t, "primary", 1, datastore.WithCapacity(200))

	_, err := kvctl(t, path, "strset", "k", strings.Repeat("v", 500))
	assert.ErrorIs(t, err, storage.ErrCapacityExceeded)
	assert.ErrorIs(t, err, manager.ErrWriteFailed)

	out, err := kvctl(t, path, "strget", "k")
	require.NoError(t, err)
	assert.Equal(t, `""`, out)
}
