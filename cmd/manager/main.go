// Package main implements the clusterkv manager process. It owns a
// manager.Manager for the lifetime of the process, keeps its node list in
// step with the cluster file and the Redis registry, and exposes
// diagnostics over HTTP.
//
// Configuration (environment or .env):
//   - MANAGER_LISTEN: Listen address (default: ":8080")
//   - CLUSTER_FILE: YAML file with nodes, selector and timeouts (optional)
//   - REDIS_ADDR: Registry to discover nodes from (optional)
//   - MANAGER_SYNC_INTERVAL: Registry poll period (default: 10s)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/config"
	"github.com/dreamware/clusterkv/internal/manager"
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

	cfg, err := config.ManagerFromEnv(os.LookupEnv)
	if err != nil {
		logFatal("config: %v", err)
		return
	}

	mgr, err := newManager(cfg.ClusterFile)
	if err != nil {
		logFatal("cluster file: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reg *registry.Store
	if cfg.RedisAddr != "" {
		reg, err = registry.New(ctx, registry.Options{Addr: cfg.RedisAddr})
		if err != nil {
			logFatal("registry: %v", err)
			return
		}
		go syncLoop(ctx, mgr, reg, cfg.SyncInterval)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newServer(mgr).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("manager listening on %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if reg != nil {
		reg.Close()
	}
	mgr.Close()
	log.Println("manager stopped")
}

// newManager builds a Manager from the cluster file at path and adds its
// nodes. An empty path yields a primary-selector manager with no nodes.
func newManager(path string) (*manager.Manager, error) {
	if path == "" {
		return manager.New(), nil
	}
	cf, err := config.LoadClusterFile(path)
	if err != nil {
		return nil, err
	}
	opts, err := cf.ManagerOptions()
	if err != nil {
		return nil, err
	}
	mgr := manager.New(opts...)
	for _, n := range cf.Nodes {
		if _, err := mgr.AddNode(n); err != nil {
			mgr.Close()
			return nil, err
		}
	}
	return mgr, nil
}

type server struct {
	mgr    *manager.Manager
	router *mux.Router
}

func newServer(mgr *manager.Manager) *server {
	s := &server{mgr: mgr, router: mux.NewRouter()}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/nodes", s.handleNodes).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

func (s *server) Handler() http.Handler { return s.router }

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, cluster.HealthResponse{Status: "ok"})
}

// handleNodes lists every node with its last known status.
func (s *server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.mgr.Nodes()
	up := 0
	for _, n := range nodes {
		if n.Status == manager.StatusUp.String() {
			up++
		}
	}
	writeJSON(w, struct {
		Nodes []manager.NodeStatus `json:"nodes"`
		Up    int                  `json:"up"`
	}{Nodes: nodes, Up: up})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// discovery is the part of the registry the manager reads.
type discovery interface {
	Prune(ctx context.Context) (int, error)
	List(ctx context.Context) ([]cluster.NodeIdentity, error)
}

// syncNodes adds every announced node the manager does not know yet and
// returns how many were added. Nodes that stop announcing are kept.
func syncNodes(ctx context.Context, mgr *manager.Manager, reg discovery) (int, error) {
	if _, err := reg.Prune(ctx); err != nil {
		return 0, err
	}
	nodes, err := reg.List(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, n := range nodes {
		if mgr.HasNode(n.Socket()) {
			continue
		}
		if _, err := mgr.AddNode(n); err != nil {
			if errors.Is(err, manager.ErrClosed) {
				return added, err
			}
			log.Printf("manager: skip discovered node %s: %v", n, err)
			continue
		}
		added++
	}
	return added, nil
}

// syncLoop runs syncNodes immediately and then every interval until ctx is
// cancelled.
func syncLoop(ctx context.Context, mgr *manager.Manager, reg discovery, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := syncNodes(ctx, mgr, reg); err != nil {
			if ctx.Err() == nil {
				log.Printf("manager: registry sync failed: %v", err)
			}
		} else if n > 0 {
			log.Printf("manager: discovered %d node(s)", n)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
