// Package cluster defines how clusterkv nodes are identified and how the
// manager talks to them: node identities, the RPC wire types and the
// JSON-over-HTTP client.
//
// # Overview
//
// The cluster is a manager with an ordered list of storage nodes:
//
//	              ┌──────────────┐
//	              │   Manager    │
//	              │              │
//	              │ - Handles    │
//	              │ - Monitors   │
//	              │ - Selector   │
//	              └──────┬───────┘
//	                     │  POST /rpc/{op}
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│  Node 1   │ │  Node 2   │ │  Node 3   │
//	│ Datastore │ │ Datastore │ │ Datastore │
//	└───────────┘ └───────────┘ └───────────┘
//
// Every node stores the full keyspace. The manager decides which nodes a
// write goes to and which node answers a read.
//
// # Node Identity
//
// NodeIdentity is the IPv4 address, port, role (shard or replica) and a
// free-form group label. Validate reports bad settings wrapped in
// ErrInvalidConfiguration. When no group is configured, NewNodeIdentity
// assigns a random five-word label such as "cedar-otter-flint-mesa-wren".
//
// # Communication Protocol
//
// Every datastore operation is one RPC:
//
//	POST /rpc/strset   {"key":"k","value":"v"}      -> {"ok":true}
//	POST /rpc/strget   {"key":"k"}                  -> {"value":"v","found":true}
//	POST /rpc/lpush    {"key":"k","values":["a"]}   -> {"length":1}
//	POST /rpc/zrange   {"key":"k","start":0,"end":-1,"with_scores":true}
//
// Health (GET /health) and diagnostics (GET /info) are plain GETs.
//
// Missing keys are never errors: reads return empty values. Failures come
// back as a non-2xx status with an ErrorResponse body:
//
//	{"code":"capacity_exceeded","error":"capacity exceeded: key \"k\" ..."}
//
// The client turns that body into a *RemoteError which unwraps to the
// matching sentinel, so callers can test errors.Is(err,
// storage.ErrCapacityExceeded) no matter which side of the wire failed.
//
// # Connections
//
// PostJSON and GetJSON share one package-level client with a 5 second
// timeout. A Client owns its own transport so that closing the handle of a
// removed node releases that node's connections and no others.
package cluster
