// Package metrics holds the Prometheus collectors exported by clusterkv nodes
// and managers on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NodeOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clusterkv_node_operations_total",
		Help: "Datastore operations served by a node, by operation and result",
	}, []string{"node", "op", "result"})

	StoreUsedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterkv_store_used_bytes",
		Help: "Estimated bytes used by the node's bounded store",
	}, []string{"node"})

	StoreKeys = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterkv_store_keys",
		Help: "Number of keys in the node's bounded store",
	}, []string{"node"})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clusterkv_manager_rpc_duration_seconds",
		Help:    "Manager to node RPC latency by operation and node",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2.0, 16),
	}, []string{"op", "node"})

	NodeUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clusterkv_manager_node_up",
		Help: "Last liveness probe result per node (1 up, 0 down)",
	}, []string{"node"})

	WriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clusterkv_manager_write_failures_total",
		Help: "Writes rejected because at least one write-set node failed",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(NodeOps)
	prometheus.MustRegister(StoreUsedBytes)
	prometheus.MustRegister(StoreKeys)
	prometheus.MustRegister(RPCDuration)
	prometheus.MustRegister(NodeUp)
	prometheus.MustRegister(WriteFailures)
}

// ObserveNodeOp counts one operation served by node.
func ObserveNodeOp(node, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	NodeOps.WithLabelValues(node, op, result).Inc()
}

func SetStoreUsage(node string, bytes int64, keys int) {
	StoreUsedBytes.WithLabelValues(node).Set(float64(bytes))
	StoreKeys.WithLabelValues(node).Set(float64(keys))
}

// ObserveRPC records the latency of one manager RPC started at start.
func ObserveRPC(op, node string, start time.Time) {
	RPCDuration.WithLabelValues(op, node).Observe(time.Since(start).Seconds())
}

func SetNodeUp(node string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	NodeUp.WithLabelValues(node).Set(v)
}

// ForgetNode drops the liveness series of a node that is no longer monitored.
func ForgetNode(node string) {
	NodeUp.DeleteLabelValues(node)
}

func IncWriteFailure(op string) {
	WriteFailures.WithLabelValues(op).Inc()
}
