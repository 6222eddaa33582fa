package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dreamware/clusterkv/internal/cluster"
)

var (
	nodeA = cluster.NodeIdentity{Address: "10.0.0.1", Port: 50051, Role: cluster.RoleShard, Group: "amber-oak"}
	nodeB = cluster.NodeIdentity{Address: "10.0.0.2", Port: 50051, Role: cluster.RoleReplica, Group: "amber-oak"}
)

func TestAnnounceAndList(t *testing.T) {
	store, mr := newStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Announce(ctx, nodeA, 2*time.Second); err != nil {
		t.Fatalf("announce failed: %v", err)
	}
	if err := store.Announce(ctx, nodeB, 10*time.Second); err != nil {
		t.Fatalf("announce failed: %v", err)
	}

	nodes, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 2 || nodes[0] != nodeA || nodes[1] != nodeB {
		t.Fatalf("unexpected nodes: %v", nodes)
	}

	mr.FastForward(3 * time.Second)
	nodes, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list nodes after expiry: %v", err)
	}
	if len(nodes) != 1 || nodes[0] != nodeB {
		t.Fatalf("expected only %s after expiry, got %v", nodeB, nodes)
	}
}

func TestAnnounceRefreshesTTL(t *testing.T) {
	store, mr := newStore(t)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.Announce(ctx, nodeA, 2*time.Second); err != nil {
			t.Fatalf("announce: %v", err)
		}
		mr.FastForward(time.Second)
	}

	nodes, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected refreshed node to stay listed, got %v", nodes)
	}
}

func TestAnnounceRejectsInvalidIdentity(t *testing.T) {
	store, _ := newStore(t)
	defer store.Close()

	err := store.Announce(context.Background(), cluster.NodeIdentity{Address: "nope", Port: 1, Role: cluster.RoleShard}, time.Second)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPrune(t *testing.T) {
	store, mr := newStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Announce(ctx, nodeA, time.Second); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := store.Announce(ctx, nodeB, time.Minute); err != nil {
		t.Fatalf("announce: %v", err)
	}
	mr.FastForward(2 * time.Second)

	removed, err := store.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	members, err := mr.Members("clusterkv:nodes")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != nodeB.Socket() {
		t.Fatalf("unexpected members after prune: %v", members)
	}

	removed, err = store.Prune(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("expected nothing left to prune, got %d, %v", removed, err)
	}
}

func TestWithdraw(t *testing.T) {
	store, _ := newStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Announce(ctx, nodeA, time.Minute); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := store.Withdraw(ctx, nodeA); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	nodes, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected no nodes, got %v", nodes)
	}
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(ctx, Options{Addr: addr}); err == nil {
		t.Fatal("expected ping failure")
	}
}

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := New(context.Background(), Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, mr
}
