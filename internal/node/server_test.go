package node

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/storage"
)

func newTestNode(t *testing.T, opts ...datastore.Option) (*Server, *cluster.Client) {
	t.Helper()
	id := cluster.NodeIdentity{Address: "127.0.0.1", Port: 50051, Role: cluster.RoleShard, Group: "test"}
	srv := NewServer(id, datastore.New(opts...))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := cluster.NewClient(ts.URL)
	t.Cleanup(client.Close)
	return srv, client
}

// TestServerStrings verifies string operations over RPC
func TestServerStrings(t *testing.T) {
	_, c := newTestNode(t)
	ctx := context.Background()

	ok, err := c.StrSet(ctx, "k", "v")
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := c.StrGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	v, err = c.StrGet(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	deleted, err := c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

// TestServerCollections verifies list, set, hash and sorted set operations over RPC
func TestServerCollections(t *testing.T) {
	_, c := newTestNode(t)
	ctx := context.Background()

	n, err := c.LPush(ctx, "l", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = c.RPush(ctx, "l", "c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	values, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, values)

	n, err = c.SAdd(ctx, "s", "x", "y", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	members, err := c.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, members)

	n, err = c.HSet(ctx, "h", datastore.HashArgs{Mapping: map[string]string{"a": "1", "b": "2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	v, found, err := c.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v)
	_, found, err = c.HGet(ctx, "h", "zz")
	require.NoError(t, err)
	assert.False(t, found)
	fields, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, fields)

	n, err = c.ZAdd(ctx, "z", map[string]float64{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	scored, err := c.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []storage.ScoredMember{{Member: "a", Score: 1}, {Member: "b", Score: 2}}, scored)
	names, err := c.ZRangeMembers(ctx, "z", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)

	// Empty results come back as empty, not nil.
	values, err = c.LRange(ctx, "missing", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{}, values)
	names, err = c.ZRangeMembers(ctx, "missing", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{}, names)
}

// TestServerErrors verifies error codes survive the round trip
func TestServerErrors(t *testing.T) {
	t.Run("invalid arguments", func(t *testing.T) {
		_, c := newTestNode(t)
		f := "f"
		_, err := c.HSet(context.Background(), "h", datastore.HashArgs{Field: &f})
		assert.ErrorIs(t, err, datastore.ErrInvalidArguments)
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		_, c := newTestNode(t, datastore.WithCapacity(100))
		_, err := c.StrSet(context.Background(), "k", strings.Repeat("x", 200))
		assert.ErrorIs(t, err, storage.ErrCapacityExceeded)

		var rerr *cluster.RemoteError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, http.StatusInsufficientStorage, rerr.Status)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, c := newTestNode(t, datastore.WithStrictTypes())
		ctx := context.Background()
		_, err := c.StrSet(ctx, "k", "v")
		require.NoError(t, err)
		_, err = c.LPush(ctx, "k", "a")
		assert.ErrorIs(t, err, datastore.ErrWrongType)
	})

	t.Run("bad json", func(t *testing.T) {
		srv, _ := newTestNode(t)
		req := httptest.NewRequest(http.MethodPost, "/rpc/strset", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), cluster.CodeBadRequest)
	})

	t.Run("unknown route", func(t *testing.T) {
		srv, _ := newTestNode(t)
		req := httptest.NewRequest(http.MethodPost, "/rpc/flushall", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		srv, _ := newTestNode(t)
		req := httptest.NewRequest(http.MethodGet, "/rpc/strget", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

// TestServerDiagnostics verifies health, info and metrics endpoints
func TestServerDiagnostics(t *testing.T) {
	srv, c := newTestNode(t, datastore.WithStrictTypes())
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	_, err := c.StrSet(ctx, "k", "v")
	require.NoError(t, err)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50051", info.Identity.Socket())
	assert.True(t, info.Strict)
	assert.Equal(t, 1, info.Stats.Storage.Keys)
	assert.Equal(t, uint64(1), info.Stats.Ops.Writes)
	assert.Equal(t, srv.Datastore().Size(), info.Stats.Storage.Bytes)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clusterkv_node_operations_total")
}
