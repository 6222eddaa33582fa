// Package manager implements the clusterkv control plane: it keeps a handle
// per storage node, tracks node liveness and routes datastore operations to
// the right nodes.
//
// # Overview
//
//	┌─────────────────────────────────────┐
//	│              MANAGER                │
//	├─────────────────────────────────────┤
//	│  handles (append-only, ordered)     │
//	│   ┌───────────┐   ┌───────────┐     │
//	│   │NodeHandle │   │NodeHandle │ ... │
//	│   │ client    │   │ client    │     │
//	│   │ monitor ──┼─► │ monitor   │     │
//	│   └───────────┘   └───────────┘     │
//	│                                     │
//	│  Selector: write set / read node    │
//	└─────────────────────────────────────┘
//
// # Node Handles
//
// AddNode validates a cluster.NodeIdentity, opens a client and starts a
// liveness monitor goroutine. The monitor probes GET /health immediately and
// then once per interval, recording StatusUp or StatusDown. A failed or
// panicking probe never stops the loop. Status starts as StatusDown and lags
// reality by at most one interval.
//
// Handles are owned by the manager. Manager.Close stops every monitor and
// releases connections; there is no implicit teardown.
//
// # Routing
//
// Every operation asks the Selector for nodes:
//
//   - Writes go to each node of the write set concurrently. The write
//     succeeds only if every node acknowledges it. Otherwise ErrWriteFailed
//     is returned wrapping all node errors. Nodes that did succeed are not
//     rolled back, so a failed write may be partially applied.
//   - Reads go to a single read node whose answer is returned as is. No
//     reconciliation happens between nodes.
//
// PrimarySelector, the default, sends everything to the first node added and
// ignores liveness. ReplicaSetSelector writes to all nodes and spreads reads
// over live nodes with rendezvous hashing:
//
//	m := manager.New(manager.WithSelector(manager.ReplicaSetSelector{SkipDown: true}))
//	m.AddNode(cluster.NodeIdentity{Address: "10.0.0.1", Port: 50051, Role: cluster.RoleShard})
//	m.AddNode(cluster.NodeIdentity{Address: "10.0.0.2", Port: 50051, Role: cluster.RoleReplica})
//	defer m.Close()
//
// # Timeouts
//
// Each RPC runs under the caller's context further bounded by the manager's
// call timeout (DefaultCallTimeout unless WithCallTimeout is given). A node
// that times out counts as a failed participant.
package manager
