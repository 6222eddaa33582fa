// Package node serves a datastore.Datastore over HTTP so a manager can reach
// it through cluster.Client.
//
// Routes:
//
//	POST /rpc/{op}  one datastore operation, JSON in and out
//	GET  /health    liveness probe
//	GET  /info      identity, type mode and statistics
//	GET  /metrics   Prometheus metrics
//
// Errors are reported as cluster.ErrorResponse bodies with the status chosen
// by cluster.ErrorCode.
package node
