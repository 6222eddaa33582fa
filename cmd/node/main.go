// Package main implements the clusterkv storage node: one bounded typed
// datastore served over HTTP to the manager.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                Node                     │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /rpc/{op}     - Datastore operations │
//	│    /health       - Health check         │
//	│    /info         - Identity and stats   │
//	│    /metrics      - Prometheus metrics   │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Datastore     - Bounded typed store  │
//	│    Announcer     - Redis registry link  │
//	└─────────────────────────────────────────┘
//
// Configuration (environment or .env):
//   - NODE_ADDRESS: IPv4 address the manager reaches the node on (required)
//   - NODE_PORT: Port the manager reaches the node on (required)
//   - NODE_LISTEN: Listen address (default: ":<NODE_PORT>")
//   - NODE_ROLE: "shard" or "replica" (default: "shard")
//   - NODE_GROUP: Group label (default: five random words)
//   - NODE_CAPACITY: Store budget such as "512MiB" (default: "1GiB")
//   - NODE_STRICT_TYPES: Reject typed writes over other kinds (default: false)
//   - REDIS_ADDR: Registry to announce in (default: none)
//   - REGISTRY_TTL: Announcement lifetime (default: 15s)
//
// Example usage:
//
//	NODE_ADDRESS=127.0.0.1 NODE_PORT=50051 NODE_CAPACITY=256MiB ./node
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/config"
	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/node"
	"github.com/dreamware/clusterkv/internal/registry"
)

// logFatal is a variable to allow mocking in tests
var logFatal = log.Fatalf

func main() {
	if loaded, err := config.LoadDotEnv(); err != nil {
		log.Printf("failed to load .env: %v", err)
	} else if loaded {
		log.Println("loaded environment variables from .env")
	}

	cfg, err := config.NodeFromEnv(os.LookupEnv)
	if err != nil {
		logFatal("config: %v", err)
		return
	}

	s := newHTTPServer(cfg)
	name := cfg.Identity.Socket()

	go func() {
		log.Printf("node[%s] listening on %s (role %s, group %s, capacity %s, strict %v)",
			name, cfg.Listen, cfg.Identity.Role, cfg.Identity.Group,
			config.FormatCapacity(cfg.Capacity), cfg.StrictTypes)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reg *registry.Store
	if cfg.RedisAddr != "" {
		reg, err = registry.New(ctx, registry.Options{Addr: cfg.RedisAddr})
		if err != nil {
			logFatal("registry: %v", err)
			return
		}
		go announce(ctx, reg, cfg.Identity, cfg.RegistryTTL)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if reg != nil {
		if err := reg.Withdraw(shutdownCtx, cfg.Identity); err != nil {
			log.Printf("registry withdraw: %v", err)
		}
		reg.Close()
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("node[%s] stopped", name)
}

// newHTTPServer builds the datastore and HTTP server described by cfg.
func newHTTPServer(cfg config.NodeConfig) *http.Server {
	ds := datastore.New(cfg.DatastoreOptions()...)
	srv := node.NewServer(cfg.Identity, ds)
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second, // Prevent slowloris attacks
	}
}

// announcer is the part of the registry a node needs.
type announcer interface {
	Announce(ctx context.Context, identity cluster.NodeIdentity, ttl time.Duration) error
}

// announce publishes identity immediately and then every ttl/3 until ctx is
// cancelled. Failures are logged and retried on the next tick.
func announce(ctx context.Context, reg announcer, identity cluster.NodeIdentity, ttl time.Duration) {
	period := ttl / 3
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	failing := false
	for {
		if err := reg.Announce(ctx, identity, ttl); err != nil {
			if !failing && ctx.Err() == nil {
				log.Printf("node[%s] announce failed: %v", identity.Socket(), err)
			}
			failing = true
		} else if failing {
			log.Printf("node[%s] announce recovered", identity.Socket())
			failing = false
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
